package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/rules"
)

func TestDisplayPrefersOverride(t *testing.T) {
	override := &model.Display{Type: model.DisplaySummary}
	state := model.ConversationState{PendingChecklist: []model.ChecklistItem{{Category: "panel"}}}
	assert.Same(t, override, Display(state, override))
}

func TestDisplayChecklistBeforeProducts(t *testing.T) {
	state := model.ConversationState{
		PendingChecklist: []model.ChecklistItem{{Category: "panel", Name: "Panel"}},
		PendingProducts:  []model.PricedProduct{{ID: "p1"}},
	}
	d := Display(state, nil)
	require.NotNil(t, d)
	assert.Equal(t, model.DisplayChecklist, d.Type)
	assert.Len(t, d.Checklist, 1)
	assert.Empty(t, d.Products)
}

func TestDisplayGroupsProducts(t *testing.T) {
	state := model.ConversationState{PendingProducts: []model.PricedProduct{
		{ID: "a", ChecklistCategory: "panel", Category: "electrical"},
		{ID: "b", ChecklistCategory: "breakers"},
		{ID: "c", ChecklistCategory: "panel"},
		{ID: "d", Category: "plumbing"},
		{ID: "e"},
	}}
	d := Display(state, nil)
	require.NotNil(t, d)
	assert.Equal(t, model.DisplayProducts, d.Type)
	assert.Len(t, d.Products, 5)

	require.Len(t, d.ProductGroups, 4)
	assert.Equal(t, "panel", d.ProductGroups[0].Category)
	assert.Len(t, d.ProductGroups[0].Products, 2)
	assert.Equal(t, "breakers", d.ProductGroups[1].Category)
	assert.Equal(t, "plumbing", d.ProductGroups[2].Category)
	assert.Equal(t, "other", d.ProductGroups[3].Category)
}

func TestDisplayNothingPending(t *testing.T) {
	assert.Nil(t, Display(model.ConversationState{}, nil))
}

func TestQuickRepliesPendingChecklistIsEmpty(t *testing.T) {
	state := model.ConversationState{PendingChecklist: []model.ChecklistItem{{Category: "panel"}}}
	got := QuickReplies([]string{"Yes"}, state, rules.Default())
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQuickRepliesDirectiveWins(t *testing.T) {
	state := model.ConversationState{Phase: model.PhaseLabor}
	assert.Equal(t, []string{"A", "B"}, QuickReplies([]string{"A", "B"}, state, rules.Default()))
}

func TestQuickRepliesHeuristic(t *testing.T) {
	rs := rules.Default()
	tests := []struct {
		name  string
		state model.ConversationState
		want  []string
	}{
		{"greeting", model.ConversationState{}, rs.JobSuggestions},
		{"pending products", model.ConversationState{PendingProducts: []model.PricedProduct{{ID: "a"}}}, []string{"Add all", "Skip"}},
		{"scoping question", model.ConversationState{
			Phase:            model.PhaseScoping,
			ScopingQuestions: []model.ScopingQuestion{{Question: "Size?", QuickReplies: []string{"100A", "200A"}}},
		}, []string{"100A", "200A"}},
		{"items without labor", model.ConversationState{
			Phase:      model.PhaseProducts,
			QuoteItems: map[string]model.QuoteItem{"a": {Name: "A", Qty: 1}},
		}, rs.LaborSuggestions},
		{"products without items", model.ConversationState{Phase: model.PhaseProducts}, nil},
		{"markup", model.ConversationState{Phase: model.PhaseMarkup}, rs.MarkupSuggestions},
		{"review", model.ConversationState{Phase: model.PhaseReview}, rs.ReviewSuggestions},
		{"complete", model.ConversationState{Phase: model.PhaseDone, IsComplete: true}, []string{"Start new quote"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuickReplies(nil, tt.state, rs))
		})
	}
}
