package model

import "encoding/json"

// Phase is a named stage of the guided quote-building conversation.
type Phase string

const (
	PhaseGreeting     Phase = "greeting"
	PhaseJobSelection Phase = "job_selection"
	PhaseScoping      Phase = "scoping"
	PhaseChecklist    Phase = "checklist"
	PhaseProducts     Phase = "products"
	PhaseLabor        Phase = "labor"
	PhaseMarkup       Phase = "markup"
	PhaseReview       Phase = "review"
	PhaseDone         Phase = "done"
)

var phaseOrder = map[Phase]int{
	PhaseGreeting:     0,
	PhaseJobSelection: 1,
	PhaseScoping:      2,
	PhaseChecklist:    3,
	PhaseProducts:     4,
	PhaseLabor:        5,
	PhaseMarkup:       6,
	PhaseReview:       7,
	PhaseDone:         8,
}

// Rank returns the position of p in the conversation order. Unknown phases rank as greeting.
func (p Phase) Rank() int {
	return phaseOrder[p]
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Message roles stored in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types, mirroring the tool-use wire format of chat providers.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of a structured message.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// Message is a role-tagged turn. Exactly one of Content or Blocks is set.
type Message struct {
	Role    string         `json:"role"`
	Content string         `json:"content,omitempty"`
	Blocks  []ContentBlock `json:"blocks,omitempty"`
}

// QuoteItem is a priced line on the quote, keyed by product id in ConversationState.QuoteItems.
type QuoteItem struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit,omitempty"`
}

// ScopingQuestion is a clarifying question tied to a job type.
type ScopingQuestion struct {
	Question     string   `json:"question" yaml:"question"`
	QuickReplies []string `json:"quickReplies" yaml:"quick_replies"`
	StoreAs      string   `json:"storeAs" yaml:"store_as"`
}

// ChecklistItem is one material category to confirm before searching products.
type ChecklistItem struct {
	Category    string   `json:"category" yaml:"category"`
	Name        string   `json:"name" yaml:"name"`
	SearchTerms []string `json:"searchTerms" yaml:"search_terms"`
	DefaultQty  float64  `json:"defaultQty" yaml:"default_qty"`
	Unit        string   `json:"unit" yaml:"unit"`
	Required    bool     `json:"required" yaml:"required"`
	Notes       string   `json:"notes,omitempty" yaml:"notes"`
}

// Product sources.
const (
	SourcePricebook = "pricebook"
	SourceCatalog   = "catalog"
)

// PricedProduct is a candidate material returned by material search.
type PricedProduct struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Price        float64 `json:"price" yaml:"price"`
	Unit         string  `json:"unit,omitempty" yaml:"unit"`
	Category     string  `json:"category,omitempty" yaml:"category"`
	Source       string  `json:"source" yaml:"source"`
	SuggestedQty float64 `json:"suggestedQty,omitempty" yaml:"suggested_qty"`
	// ChecklistCategory groups products found while confirming a checklist.
	ChecklistCategory string `json:"checklistCategory,omitempty" yaml:"-"`
}

// KnowledgeDoc is a trade knowledge document.
type KnowledgeDoc struct {
	Title            string            `json:"title" yaml:"title"`
	Content          string            `json:"content" yaml:"content"`
	JobType          string            `json:"jobType" yaml:"job_type"`
	Trade            string            `json:"trade,omitempty" yaml:"trade"`
	ScopingQuestions []ScopingQuestion `json:"scopingQuestions,omitempty" yaml:"scoping_questions"`
}

// ConversationState is threaded through every turn and round-tripped verbatim by the client.
type ConversationState struct {
	Phase    Phase     `json:"phase,omitempty"`
	Messages []Message `json:"messages"`

	QuoteItems  map[string]QuoteItem `json:"quoteItems"`
	QuoteName   string               `json:"quoteName,omitempty"`
	ClientName  string               `json:"clientName,omitempty"`
	ClientEmail string               `json:"clientEmail,omitempty"`
	ClientPhone string               `json:"clientPhone,omitempty"`

	LaborHours    *float64 `json:"laborHours,omitempty"`
	LaborRate     *float64 `json:"laborRate,omitempty"`
	MarkupPercent *float64 `json:"markupPercent,omitempty"`

	TradecraftContext string `json:"tradecraftContext,omitempty"`
	TradecraftJobType string `json:"tradecraftJobType,omitempty"`

	PendingChecklist []ChecklistItem `json:"pendingChecklist,omitempty"`
	PendingProducts  []PricedProduct `json:"pendingProducts,omitempty"`

	ScopingQuestions     []ScopingQuestion `json:"scopingQuestions,omitempty"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	ScopingAnswers       map[string]string `json:"scopingAnswers"`

	IsComplete bool `json:"isComplete"`
}

// CurrentPhase treats an absent phase as greeting.
func (s ConversationState) CurrentPhase() Phase {
	if s.Phase == "" || !s.Phase.Valid() {
		return PhaseGreeting
	}
	return s.Phase
}

// Advance moves the phase forward to p. It never moves backwards.
func (s *ConversationState) Advance(p Phase) {
	if p.Rank() > s.CurrentPhase().Rank() {
		s.Phase = p
	}
}

// CurrentQuestion returns the scoping question awaiting an answer, if any.
func (s ConversationState) CurrentQuestion() (ScopingQuestion, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.ScopingQuestions) {
		return ScopingQuestion{}, false
	}
	return s.ScopingQuestions[s.CurrentQuestionIndex], true
}

// ScopingComplete reports whether every loaded scoping question has been answered.
func (s ConversationState) ScopingComplete() bool {
	return len(s.ScopingQuestions) > 0 && s.CurrentQuestionIndex >= len(s.ScopingQuestions)
}

// AppendMessages returns the log with msgs appended. The existing log is never mutated.
func (s *ConversationState) AppendMessages(msgs ...Message) {
	next := make([]Message, 0, len(s.Messages)+len(msgs))
	next = append(next, s.Messages...)
	next = append(next, msgs...)
	s.Messages = next
}

// Clone returns a deep copy so callers can derive a new snapshot without aliasing.
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m
			if m.Blocks != nil {
				out.Messages[i].Blocks = append([]ContentBlock(nil), m.Blocks...)
			}
		}
	}
	if s.QuoteItems != nil {
		out.QuoteItems = make(map[string]QuoteItem, len(s.QuoteItems))
		for k, v := range s.QuoteItems {
			out.QuoteItems[k] = v
		}
	}
	if s.ScopingAnswers != nil {
		out.ScopingAnswers = make(map[string]string, len(s.ScopingAnswers))
		for k, v := range s.ScopingAnswers {
			out.ScopingAnswers[k] = v
		}
	}
	out.LaborHours = clonePtr(s.LaborHours)
	out.LaborRate = clonePtr(s.LaborRate)
	out.MarkupPercent = clonePtr(s.MarkupPercent)
	if s.PendingChecklist != nil {
		out.PendingChecklist = make([]ChecklistItem, len(s.PendingChecklist))
		for i, it := range s.PendingChecklist {
			out.PendingChecklist[i] = it
			out.PendingChecklist[i].SearchTerms = append([]string(nil), it.SearchTerms...)
		}
	}
	if s.PendingProducts != nil {
		out.PendingProducts = append([]PricedProduct(nil), s.PendingProducts...)
	}
	if s.ScopingQuestions != nil {
		out.ScopingQuestions = make([]ScopingQuestion, len(s.ScopingQuestions))
		for i, q := range s.ScopingQuestions {
			out.ScopingQuestions[i] = q
			out.ScopingQuestions[i].QuickReplies = append([]string(nil), q.QuickReplies...)
		}
	}
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
