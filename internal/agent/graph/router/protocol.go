package router

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tags prefixing UI-generated messages. They are matched before any phrase heuristic.
const (
	TagSelectedProducts = "[SELECTED_PRODUCTS]"
	TagConfirmChecklist = "[CONFIRM_CHECKLIST]"
)

// SelectedProduct is one entry of a [SELECTED_PRODUCTS] payload.
type SelectedProduct struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
	Unit  string  `json:"unit,omitempty"`
}

// splitTag returns the tag and its raw payload when msg starts with a known tag.
func splitTag(msg string) (tag, payload string, ok bool) {
	msg = strings.TrimSpace(msg)
	for _, t := range []string{TagSelectedProducts, TagConfirmChecklist} {
		if strings.HasPrefix(msg, t) {
			return t, strings.TrimSpace(msg[len(t):]), true
		}
	}
	return "", "", false
}

func decodeSelection(payload string) ([]SelectedProduct, error) {
	var items []SelectedProduct
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", TagSelectedProducts, err)
	}
	for i, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return nil, fmt.Errorf("decode %s payload: item %d has no id", TagSelectedProducts, i)
		}
	}
	return items, nil
}

func decodeCategories(payload string) ([]string, error) {
	var cats []string
	if err := json.Unmarshal([]byte(payload), &cats); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", TagConfirmChecklist, err)
	}
	return cats, nil
}

// EncodeSelection renders a [SELECTED_PRODUCTS] message, as the client sends it.
func EncodeSelection(items []SelectedProduct) string {
	b, _ := json.Marshal(items)
	return TagSelectedProducts + " " + string(b)
}

// EncodeConfirmation renders a [CONFIRM_CHECKLIST] message.
func EncodeConfirmation(categories []string) string {
	b, _ := json.Marshal(categories)
	return TagConfirmChecklist + " " + string(b)
}
