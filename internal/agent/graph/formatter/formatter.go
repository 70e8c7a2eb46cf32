// Package formatter shapes the structured part of a turn response from the final state.
package formatter

import (
	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/rules"
)

var (
	productReplies = []string{"Add all", "Skip"}
	doneReplies    = []string{"Start new quote"}
)

// Display picks the single payload the client renders. An override produced by the
// router wins; otherwise a pending checklist, then pending products.
func Display(state model.ConversationState, override *model.Display) *model.Display {
	if override != nil {
		return override
	}
	if len(state.PendingChecklist) > 0 {
		return &model.Display{
			Type:      model.DisplayChecklist,
			Checklist: append([]model.ChecklistItem(nil), state.PendingChecklist...),
		}
	}
	if len(state.PendingProducts) > 0 {
		return &model.Display{
			Type:          model.DisplayProducts,
			Products:      append([]model.PricedProduct(nil), state.PendingProducts...),
			ProductGroups: groupProducts(state.PendingProducts),
		}
	}
	return nil
}

// QuickReplies returns the suggested answers for the client. A pending checklist always
// yields none because the client renders checkboxes instead.
func QuickReplies(options []string, state model.ConversationState, rs *rules.Rules) []string {
	if len(state.PendingChecklist) > 0 {
		return []string{}
	}
	if len(options) > 0 {
		return options
	}
	return suggest(state, rs)
}

func suggest(state model.ConversationState, rs *rules.Rules) []string {
	if len(state.PendingProducts) > 0 {
		return productReplies
	}
	if q, ok := state.CurrentQuestion(); ok {
		return q.QuickReplies
	}
	if state.IsComplete {
		return doneReplies
	}
	if rs == nil {
		return nil
	}

	switch state.CurrentPhase() {
	case model.PhaseGreeting, model.PhaseJobSelection:
		if state.TradecraftJobType == "" {
			return rs.JobSuggestions
		}
	case model.PhaseProducts:
		if len(state.QuoteItems) > 0 && state.LaborHours == nil {
			return rs.LaborSuggestions
		}
	case model.PhaseLabor:
		return rs.LaborSuggestions
	case model.PhaseMarkup:
		return rs.MarkupSuggestions
	case model.PhaseReview:
		return rs.ReviewSuggestions
	case model.PhaseDone:
		return doneReplies
	}
	return nil
}

// groupProducts buckets candidates by checklist category, falling back to the catalog
// category, in first-seen order.
func groupProducts(products []model.PricedProduct) []model.ProductGroup {
	var groups []model.ProductGroup
	index := make(map[string]int)
	for _, p := range products {
		key := p.ChecklistCategory
		if key == "" {
			key = p.Category
		}
		if key == "" {
			key = "other"
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, model.ProductGroup{Category: key})
		}
		groups[i].Products = append(groups[i].Products, p)
	}
	return groups
}
