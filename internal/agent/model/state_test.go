package model

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullState() ConversationState {
	return ConversationState{
		Phase: PhaseProducts,
		Messages: []Message{
			{Role: RoleUser, Content: "panel upgrade"},
			{Role: RoleAssistant, Blocks: []ContentBlock{
				{Type: BlockText, Text: "Looking that up."},
				{Type: BlockToolUse, ID: "call_1", Name: "search_materials", Input: json.RawMessage(`{"terms":["breaker"]}`)},
			}},
			{Role: RoleUser, Blocks: []ContentBlock{
				{Type: BlockToolResult, ToolUseID: "call_1", Content: "Found 2 products"},
			}},
		},
		QuoteItems: map[string]QuoteItem{
			"sku-1": {Name: "200A Panel", UnitPrice: 289.5, Qty: 1, Unit: "ea"},
		},
		QuoteName:         "Smith panel",
		ClientName:        "Pat Smith",
		ClientEmail:       "pat@example.com",
		ClientPhone:       "555-0100",
		LaborHours:        Float(8),
		LaborRate:         Float(75),
		MarkupPercent:     Float(0),
		TradecraftContext: "Panel upgrades replace the service panel.",
		TradecraftJobType: "panel_upgrade",
		PendingChecklist: []ChecklistItem{
			{Category: "panel", Name: "Load center", SearchTerms: []string{"200A panel"}, DefaultQty: 1, Unit: "ea", Required: true, Notes: "match main"},
		},
		PendingProducts: []PricedProduct{
			{ID: "sku-2", Name: "20A breaker", Price: 9.75, Unit: "ea", Category: "electrical", Source: SourceCatalog, SuggestedQty: 4, ChecklistCategory: "breakers"},
		},
		ScopingQuestions: []ScopingQuestion{
			{Question: "Current service size?", QuickReplies: []string{"100A", "150A"}, StoreAs: "current_service"},
		},
		CurrentQuestionIndex: 1,
		ScopingAnswers:       map[string]string{"current_service": "100A"},
		IsComplete:           false,
	}
}

func TestConversationStateRoundTrip(t *testing.T) {
	in := fullState()

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out ConversationState
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestConversationStateWireNames(t *testing.T) {
	b, err := json.Marshal(fullState())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{
		"phase", "messages", "quoteItems", "quoteName", "clientName", "clientEmail", "clientPhone",
		"laborHours", "laborRate", "markupPercent", "tradecraftContext", "tradecraftJobType",
		"pendingChecklist", "pendingProducts", "scopingQuestions", "currentQuestionIndex",
		"scopingAnswers", "isComplete",
	} {
		assert.Contains(t, raw, key)
	}
}

func TestEmptyMapsSurviveRoundTrip(t *testing.T) {
	in := ConversationState{
		Phase:          PhaseScoping,
		QuoteItems:     map[string]QuoteItem{},
		ScopingAnswers: map[string]string{},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out ConversationState
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
	assert.NotNil(t, out.ScopingAnswers)
}

func TestZeroMarkupSurvivesRoundTrip(t *testing.T) {
	in := ConversationState{Phase: PhaseReview, MarkupPercent: Float(0)}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out ConversationState
	require.NoError(t, json.Unmarshal(b, &out))
	require.NotNil(t, out.MarkupPercent)
	assert.Equal(t, 0.0, *out.MarkupPercent)
}

func TestCurrentPhaseDefaultsToGreeting(t *testing.T) {
	assert.Equal(t, PhaseGreeting, ConversationState{}.CurrentPhase())
	assert.Equal(t, PhaseGreeting, ConversationState{Phase: "bogus"}.CurrentPhase())
	assert.Equal(t, PhaseLabor, ConversationState{Phase: PhaseLabor}.CurrentPhase())
}

func TestAdvanceOnlyMovesForward(t *testing.T) {
	s := ConversationState{Phase: PhaseMarkup}
	s.Advance(PhaseLabor)
	assert.Equal(t, PhaseMarkup, s.Phase)

	s.Advance(PhaseReview)
	assert.Equal(t, PhaseReview, s.Phase)

	var fresh ConversationState
	fresh.Advance(PhaseScoping)
	assert.Equal(t, PhaseScoping, fresh.Phase)
}

func TestCurrentQuestion(t *testing.T) {
	s := fullState()
	s.CurrentQuestionIndex = 0
	q, ok := s.CurrentQuestion()
	require.True(t, ok)
	assert.Equal(t, "current_service", q.StoreAs)
	assert.False(t, s.ScopingComplete())

	s.CurrentQuestionIndex = 1
	_, ok = s.CurrentQuestion()
	assert.False(t, ok)
	assert.True(t, s.ScopingComplete())
}

func TestCloneDoesNotAlias(t *testing.T) {
	orig := fullState()
	c := orig.Clone()

	c.QuoteItems["sku-9"] = QuoteItem{Name: "extra"}
	c.ScopingAnswers["x"] = "y"
	*c.LaborHours = 99
	c.PendingChecklist[0].SearchTerms[0] = "changed"
	c.ScopingQuestions[0].QuickReplies[0] = "changed"
	c.Messages[1].Blocks[0].Text = "changed"

	assert.Len(t, orig.QuoteItems, 1)
	assert.NotContains(t, orig.ScopingAnswers, "x")
	assert.Equal(t, 8.0, *orig.LaborHours)
	assert.Equal(t, "200A panel", orig.PendingChecklist[0].SearchTerms[0])
	assert.Equal(t, "100A", orig.ScopingQuestions[0].QuickReplies[0])
	assert.Equal(t, "Looking that up.", orig.Messages[1].Blocks[0].Text)
}

func TestAppendMessagesKeepsPriorSlice(t *testing.T) {
	s := ConversationState{Messages: make([]Message, 1, 8)}
	s.Messages[0] = Message{Role: RoleUser, Content: "hi"}
	before := s.Messages

	s.AppendMessages(Message{Role: RoleAssistant, Content: "hello"})
	assert.Len(t, before, 1)
	assert.Len(t, s.Messages, 2)
}

func TestCostOf(t *testing.T) {
	c := CostOf("gemini-2.5-flash", &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 100_000, TotalTokens: 1_100_000})
	assert.InDelta(t, 0.30, c.InputUSD, 1e-9)
	assert.InDelta(t, 0.25, c.OutputUSD, 1e-9)
	assert.InDelta(t, 0.55, c.TotalUSD, 1e-9)
	assert.Equal(t, 1_100_000, c.Extra()["total_tokens"])

	assert.Zero(t, CostOf("gemini-2.5-flash", nil).TotalUSD)
	assert.Equal(t, Pricing{}, ResolvePricing("unknown-model"))
	assert.Equal(t, ResolvePricing("gemini-2.5-flash-lite"), ResolvePricing("gemini-2.5-flash-lite-preview-06-17"))
	assert.Equal(t, Pricing{InputPerM: 0.30, OutputPerM: 2.50}, ResolvePricing("gemini-2.5-flash-preview-09-2025"))
}
