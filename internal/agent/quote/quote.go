// Package quote folds quote-building intents into immutable conversation snapshots.
// Every function takes a state value and returns a new one; inputs are never mutated.
package quote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drew-quote-core/server/internal/agent/model"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrMissingID      = errors.New("item id is required")
)

// Item is an add-item intent. Qty is the total selected quantity, not a delta.
type Item struct {
	ID        string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit,omitempty"`
}

// Info carries optional quote/client metadata; empty fields leave the state untouched.
type Info struct {
	QuoteName   string `json:"quoteName,omitempty"`
	ClientName  string `json:"clientName,omitempty"`
	ClientEmail string `json:"clientEmail,omitempty"`
	ClientPhone string `json:"clientPhone,omitempty"`
}

// Reset returns a fresh state for a new quote.
func Reset() model.ConversationState {
	return model.ConversationState{
		Phase:    model.PhaseJobSelection,
		Messages: []model.Message{},
	}
}

// AddItems merges items by product id. A repeated id overwrites the quantity (last write wins).
// Added ids are also dropped from the pending product list.
func AddItems(s model.ConversationState, items []Item) (model.ConversationState, error) {
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return s, ErrMissingID
		}
		if it.UnitPrice < 0 || it.Qty < 0 {
			return s, fmt.Errorf("item %s: %w", it.ID, ErrNegativeAmount)
		}
	}

	out := s.Clone()
	if out.QuoteItems == nil {
		out.QuoteItems = make(map[string]model.QuoteItem, len(items))
	}
	added := make(map[string]bool, len(items))
	for _, it := range items {
		qty := it.Qty
		if qty == 0 {
			qty = 1
		}
		out.QuoteItems[it.ID] = model.QuoteItem{
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Qty:       qty,
			Unit:      it.Unit,
		}
		added[it.ID] = true
	}

	if len(out.PendingProducts) > 0 {
		remaining := out.PendingProducts[:0:0]
		for _, p := range out.PendingProducts {
			if !added[p.ID] {
				remaining = append(remaining, p)
			}
		}
		if len(remaining) == 0 {
			remaining = nil
		}
		out.PendingProducts = remaining
	}
	return out, nil
}

// ItemsFromProducts converts candidates into add intents at their suggested quantity.
func ItemsFromProducts(products []model.PricedProduct) []Item {
	items := make([]Item, 0, len(products))
	for _, p := range products {
		qty := p.SuggestedQty
		if qty <= 0 {
			qty = 1
		}
		items = append(items, Item{ID: p.ID, Name: p.Name, UnitPrice: p.Price, Qty: qty, Unit: p.Unit})
	}
	return items
}

// RemoveItems drops items whose id is in ids or whose name contains nameContains
// (case-insensitive). It returns the number removed and never fails when nothing matches.
func RemoveItems(s model.ConversationState, ids []string, nameContains string) (model.ConversationState, int) {
	out := s.Clone()
	if len(out.QuoteItems) == 0 {
		return out, 0
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[strings.TrimSpace(id)] = true
	}
	needle := strings.ToLower(strings.TrimSpace(nameContains))

	removed := 0
	for id, it := range out.QuoteItems {
		if idSet[id] || (needle != "" && strings.Contains(strings.ToLower(it.Name), needle)) {
			delete(out.QuoteItems, id)
			removed++
		}
	}
	return out, removed
}

// SetLabor stores hours and rate and moves the conversation to markup.
func SetLabor(s model.ConversationState, hours, rate float64) (model.ConversationState, error) {
	if hours < 0 || rate < 0 {
		return s, ErrNegativeAmount
	}
	out := s.Clone()
	out.LaborHours = model.Float(hours)
	out.LaborRate = model.Float(rate)
	out.Advance(model.PhaseMarkup)
	return out, nil
}

// SetMarkup stores the markup percent and moves the conversation to review.
func SetMarkup(s model.ConversationState, percent float64) (model.ConversationState, error) {
	if percent < 0 {
		return s, ErrNegativeAmount
	}
	out := s.Clone()
	out.MarkupPercent = model.Float(percent)
	out.Advance(model.PhaseReview)
	return out, nil
}

// SetQuoteInfo shallow-merges the non-empty metadata fields.
func SetQuoteInfo(s model.ConversationState, info Info) model.ConversationState {
	out := s.Clone()
	if v := strings.TrimSpace(info.QuoteName); v != "" {
		out.QuoteName = v
	}
	if v := strings.TrimSpace(info.ClientName); v != "" {
		out.ClientName = v
	}
	if v := strings.TrimSpace(info.ClientEmail); v != "" {
		out.ClientEmail = v
	}
	if v := strings.TrimSpace(info.ClientPhone); v != "" {
		out.ClientPhone = v
	}
	return out
}

// Finalize marks the quote complete and fills in a default name when none was given.
func Finalize(s model.ConversationState) model.ConversationState {
	out := s.Clone()
	out.IsComplete = true
	out.Phase = model.PhaseDone
	out.PendingChecklist = nil
	out.PendingProducts = nil
	if strings.TrimSpace(out.QuoteName) == "" {
		out.QuoteName = DefaultName(out.TradecraftJobType)
	}
	return out
}

// DefaultName derives a quote name such as "Panel Upgrade Quote" from a job type key.
func DefaultName(jobType string) string {
	words := strings.FieldsFunc(jobType, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	if len(words) == 0 {
		return "New Quote"
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ") + " Quote"
}

// short trade words that read better upper-cased
var acronyms = map[string]bool{"ev": true, "hvac": true, "gfci": true, "afci": true}

func titleWord(w string) string {
	lw := strings.ToLower(w)
	if acronyms[lw] {
		return strings.ToUpper(lw)
	}
	return strings.ToUpper(lw[:1]) + lw[1:]
}
