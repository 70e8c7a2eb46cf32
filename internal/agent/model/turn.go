package model

import "encoding/json"

// UserSettings are the caller's defaults applied by the router and tools.
type UserSettings struct {
	DefaultLaborRate     *float64 `json:"defaultLaborRate,omitempty"`
	DefaultMarkupPercent *float64 `json:"defaultMarkupPercent,omitempty"`
}

// TurnRequest is the per-turn input. State is nil on the first turn of a session.
type TurnRequest struct {
	UserMessage  string             `json:"userMessage"`
	State        *ConversationState `json:"state,omitempty"`
	UserSettings *UserSettings      `json:"userSettings,omitempty"`
	UserID       string             `json:"userId,omitempty"`
}

// Display types.
const (
	DisplayProducts  = "products"
	DisplayAdded     = "added"
	DisplaySummary   = "summary"
	DisplayChecklist = "checklist"
)

// ProductGroup is a set of candidate products found for one checklist category.
type ProductGroup struct {
	Category string          `json:"category"`
	Name     string          `json:"name,omitempty"`
	Products []PricedProduct `json:"products"`
}

// AddedItem echoes a quote line that was just added.
type AddedItem struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit,omitempty"`
}

// QuoteSummary is the computed totals of a quote.
type QuoteSummary struct {
	MaterialsSubtotal float64 `json:"materialsSubtotal"`
	MarkupPercent     float64 `json:"markupPercent"`
	MarkupAmount      float64 `json:"markupAmount"`
	LaborHours        float64 `json:"laborHours"`
	LaborRate         float64 `json:"laborRate"`
	LaborTotal        float64 `json:"laborTotal"`
	GrandTotal        float64 `json:"grandTotal"`
	ItemCount         int     `json:"itemCount"`
}

// Display is the single structured payload the client renders alongside the message.
type Display struct {
	Type          string          `json:"type"`
	Products      []PricedProduct `json:"products,omitempty"`
	ProductGroups []ProductGroup  `json:"productGroups,omitempty"`
	Checklist     []ChecklistItem `json:"checklist,omitempty"`
	AddedItems    []AddedItem     `json:"addedItems,omitempty"`
	Summary       *QuoteSummary   `json:"summary,omitempty"`
}

// ToolCallRecord describes a tool executed during a turn.
type ToolCallRecord struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// TurnResponse is the per-turn output.
type TurnResponse struct {
	Message       string            `json:"message"`
	State         ConversationState `json:"state"`
	Display       *Display          `json:"display,omitempty"`
	QuickReplies  []string          `json:"quickReplies,omitempty"`
	ToolCalls     []ToolCallRecord  `json:"toolCalls,omitempty"`
	LowConfidence bool              `json:"lowConfidence,omitempty"`
}
