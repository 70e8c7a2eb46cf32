package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/quote"
	"github.com/drew-quote-core/server/internal/agent/rules"
	"github.com/drew-quote-core/server/internal/lookup/static"
)

func seedLookups(t *testing.T) model.Lookups {
	t.Helper()
	store, err := static.Load()
	require.NoError(t, err)
	return model.Lookups{Knowledge: store, Checklists: store, Materials: store.Materials()}
}

func newRouter(t *testing.T, lookups model.Lookups) *Router {
	t.Helper()
	cfg := model.DefaultAgentConfig()
	cfg.LookupTimeout = time.Second
	return New(rules.Default(), lookups, cfg)
}

func route(t *testing.T, r *Router, msg string, state model.ConversationState) Outcome {
	t.Helper()
	return r.Route(context.Background(), model.TurnRequest{UserMessage: msg, State: &state})
}

type failingKB struct{}

func (failingKB) Search(context.Context, string, string) (*model.KnowledgeDoc, error) {
	return nil, errors.New("down")
}

func (failingKB) GetByJobType(context.Context, string) (*model.KnowledgeDoc, error) {
	return nil, errors.New("down")
}

type emptyChecklists struct{}

func (emptyChecklists) GetChecklist(context.Context, string) ([]model.ChecklistItem, error) {
	return nil, nil
}

type sameProductSearcher struct{ calls int }

func (s *sameProductSearcher) Search(context.Context, model.MaterialQuery) ([]model.PricedProduct, error) {
	s.calls++
	return []model.PricedProduct{
		{ID: "shared", Name: "Shared Part", Price: 5, Source: model.SourceCatalog},
		{ID: "other", Name: "Other Part", Price: 6, Source: model.SourceCatalog},
		{ID: "third", Name: "Third Part", Price: 7, Source: model.SourceCatalog},
	}, nil
}

func scopingState(t *testing.T, lookups model.Lookups) model.ConversationState {
	t.Helper()
	out := route(t, newRouter(t, lookups), "panel upgrade", model.ConversationState{Phase: model.PhaseJobSelection})
	require.True(t, out.Handled)
	return out.State
}

func checklistState(t *testing.T, lookups model.Lookups) model.ConversationState {
	t.Helper()
	r := newRouter(t, lookups)
	state := scopingState(t, lookups)
	for _, answer := range []string{"100A", "200A", "No"} {
		out := route(t, r, answer, state)
		require.True(t, out.Handled, answer)
		state = out.State
	}
	require.Equal(t, model.PhaseChecklist, state.Phase)
	return state
}

func TestJobTypeStartsScoping(t *testing.T) {
	lookups := seedLookups(t)
	out := route(t, newRouter(t, lookups), "panel upgrade", model.ConversationState{Phase: model.PhaseJobSelection})

	require.True(t, out.Handled)
	assert.Equal(t, RuleJobType, out.Rule)
	assert.Equal(t, model.PhaseScoping, out.State.Phase)
	assert.Equal(t, "panel_upgrade", out.State.TradecraftJobType)
	assert.NotEmpty(t, out.State.TradecraftContext)
	assert.Equal(t, 0, out.State.CurrentQuestionIndex)
	assert.Empty(t, out.State.ScopingAnswers)
	assert.Equal(t, []string{"100A", "150A", "60A or fuse box"}, out.QuickReplies)
	assert.Contains(t, out.Message, "What size is the current service?")
	require.Len(t, out.State.Messages, 2)
	assert.Equal(t, model.RoleUser, out.State.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, out.State.Messages[1].Role)
}

func TestRoutedStateSurvivesWireRoundTrip(t *testing.T) {
	state := scopingState(t, seedLookups(t))

	b, err := json.Marshal(state)
	require.NoError(t, err)
	var back model.ConversationState
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, state, back)
}

func TestJobTypeFiresWithoutPhase(t *testing.T) {
	out := newRouter(t, seedLookups(t)).Route(context.Background(), model.TurnRequest{UserMessage: "EV charger"})
	require.True(t, out.Handled)
	assert.Equal(t, "ev_charger", out.State.TradecraftJobType)
}

func TestJobTypeFallsThrough(t *testing.T) {
	lookups := seedLookups(t)
	tests := []struct {
		name    string
		lookups model.Lookups
		msg     string
		state   model.ConversationState
	}{
		{name: "not a keyword", lookups: lookups, msg: "I need to rewire a kitchen", state: model.ConversationState{Phase: model.PhaseJobSelection}},
		{name: "no scoping questions", lookups: lookups, msg: "ceiling fan", state: model.ConversationState{Phase: model.PhaseJobSelection}},
		{name: "unknown to knowledge base", lookups: lookups, msg: "outlet", state: model.ConversationState{Phase: model.PhaseJobSelection}},
		{name: "lookup error", lookups: model.Lookups{Knowledge: failingKB{}}, msg: "panel upgrade", state: model.ConversationState{Phase: model.PhaseJobSelection}},
		{name: "wrong phase", lookups: lookups, msg: "panel upgrade", state: model.ConversationState{Phase: model.PhaseLabor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := route(t, newRouter(t, tt.lookups), tt.msg, tt.state)
			assert.False(t, out.Handled)
			assert.Equal(t, tt.state.Phase, out.State.Phase)
			assert.Empty(t, out.State.TradecraftJobType)
		})
	}
}

func TestScopingAnswerExactMatch(t *testing.T) {
	lookups := seedLookups(t)
	state := scopingState(t, lookups)

	out := route(t, newRouter(t, lookups), "100A", state)
	require.True(t, out.Handled)
	assert.Equal(t, RuleScopingAnswer, out.Rule)
	assert.Equal(t, "100A", out.State.ScopingAnswers["current_service"])
	assert.Equal(t, 1, out.State.CurrentQuestionIndex)
	assert.Equal(t, model.PhaseScoping, out.State.Phase)
	assert.Equal(t, "What size panel are you installing?", out.Message)
	assert.Equal(t, []string{"200A", "150A", "400A"}, out.QuickReplies)
}

func TestScopingAnswerWithoutMatchFallsThrough(t *testing.T) {
	lookups := seedLookups(t)
	state := scopingState(t, lookups)

	out := route(t, newRouter(t, lookups), "honestly no idea, the house is old", state)
	assert.False(t, out.Handled)
	assert.Equal(t, 0, out.State.CurrentQuestionIndex)
	assert.Empty(t, out.State.ScopingAnswers)
}

func TestScopingCompletesIntoChecklist(t *testing.T) {
	lookups := seedLookups(t)
	r := newRouter(t, lookups)
	state := scopingState(t, lookups)

	for i, answer := range []string{"100a", "200A", "not sure"} {
		assert.Equal(t, model.PhaseScoping, state.Phase)
		out := route(t, r, answer, state)
		require.True(t, out.Handled)
		state = out.State
		assert.Equal(t, i+1, state.CurrentQuestionIndex)
		assert.LessOrEqual(t, state.CurrentQuestionIndex, len(state.ScopingQuestions))
	}
	assert.Equal(t, model.PhaseChecklist, state.Phase)
	assert.Len(t, state.PendingChecklist, 4)
	assert.Equal(t, map[string]string{"current_service": "100A", "new_service": "200A", "meter_base": "Not sure"}, state.ScopingAnswers)
}

func TestFinalScopingAnswerWithoutChecklistCarriesProgress(t *testing.T) {
	lookups := seedLookups(t)
	lookups.Checklists = emptyChecklists{}
	state := scopingState(t, lookups)
	state.CurrentQuestionIndex = 2
	state.ScopingAnswers = map[string]string{"current_service": "100A", "new_service": "200A"}

	out := route(t, newRouter(t, lookups), "Yes", state)
	assert.False(t, out.Handled)
	assert.Equal(t, 3, out.State.CurrentQuestionIndex)
	assert.Equal(t, "Yes", out.State.ScopingAnswers["meter_base"])
	assert.Equal(t, model.PhaseScoping, out.State.Phase)
	assert.Empty(t, out.State.PendingChecklist)
}

func TestChecklistAffirmationConfirmsRequired(t *testing.T) {
	lookups := seedLookups(t)
	state := checklistState(t, lookups)

	out := route(t, newRouter(t, lookups), "looks good", state)
	require.True(t, out.Handled)
	assert.Equal(t, RuleChecklistConfirm, out.Rule)
	assert.Equal(t, model.PhaseProducts, out.State.Phase)
	assert.Nil(t, out.State.PendingChecklist)
	assert.Equal(t, []string{"Add all", "Skip"}, out.QuickReplies)

	perCat := map[string]int{}
	ids := map[string]bool{}
	for _, p := range out.State.PendingProducts {
		perCat[p.ChecklistCategory]++
		assert.False(t, ids[p.ID], "duplicate %s", p.ID)
		ids[p.ID] = true
		assert.Equal(t, "electrical", p.Category)
	}
	assert.Equal(t, map[string]int{"panel": 2, "breakers": 2, "service_cable": 1}, perCat)
	assert.NotContains(t, ids, "cat-grd-rod")
	assert.NotContains(t, ids, "cat-pex-brk")
}

func TestChecklistConfirmationDedupsAcrossCategories(t *testing.T) {
	lookups := seedLookups(t)
	state := checklistState(t, lookups)
	searcher := &sameProductSearcher{}
	lookups.Materials = searcher

	out := route(t, newRouter(t, lookups), EncodeConfirmation([]string{"panel", "breakers", "grounding"}), state)
	require.True(t, out.Handled)
	assert.Equal(t, 3, searcher.calls)

	var got []string
	for _, p := range out.State.PendingProducts {
		got = append(got, p.ChecklistCategory+":"+p.ID)
	}
	assert.Equal(t, []string{"panel:shared", "panel:other", "breakers:third"}, got)
}

func TestChecklistTaggedConfirmation(t *testing.T) {
	lookups := seedLookups(t)
	state := checklistState(t, lookups)

	out := route(t, newRouter(t, lookups), EncodeConfirmation([]string{"grounding"}), state)
	require.True(t, out.Handled)
	require.Len(t, out.State.PendingProducts, 1)
	assert.Equal(t, "cat-grd-rod", out.State.PendingProducts[0].ID)
	assert.Equal(t, float64(2), out.State.PendingProducts[0].SuggestedQty)
}

func TestChecklistOnlyItem(t *testing.T) {
	lookups := seedLookups(t)
	state := checklistState(t, lookups)
	r := newRouter(t, lookups)

	out := route(t, r, "just the breakers", state)
	require.True(t, out.Handled)
	for _, p := range out.State.PendingProducts {
		assert.Equal(t, "breakers", p.ChecklistCategory)
	}

	miss := route(t, r, "only the chandelier", state)
	assert.False(t, miss.Handled)
	assert.Len(t, miss.State.PendingChecklist, 4)
}

func TestSkipChecklist(t *testing.T) {
	lookups := seedLookups(t)
	state := checklistState(t, lookups)

	out := route(t, newRouter(t, lookups), "skip checklist", state)
	require.True(t, out.Handled)
	assert.Equal(t, RuleSkipChecklist, out.Rule)
	assert.Nil(t, out.State.PendingChecklist)
	assert.Equal(t, model.PhaseProducts, out.State.Phase)
}

func pendingProductsState() model.ConversationState {
	return model.ConversationState{
		Phase:             model.PhaseProducts,
		TradecraftJobType: "panel_upgrade",
		PendingProducts: []model.PricedProduct{
			{ID: "cat-panel-200", Name: "200A Main Breaker Load Center", Price: 289, Unit: "ea", SuggestedQty: 1},
			{ID: "cat-brk-20", Name: "20A Single Pole Circuit Breaker", Price: 9.98, Unit: "ea", SuggestedQty: 12},
		},
	}
}

func TestSelectedProductsPayload(t *testing.T) {
	msg := EncodeSelection([]SelectedProduct{
		{ID: "cat-brk-20", Name: "20A Single Pole Circuit Breaker", Price: 9.98, Qty: 6, Unit: "ea"},
	})
	out := route(t, newRouter(t, seedLookups(t)), msg, pendingProductsState())

	require.True(t, out.Handled)
	assert.Equal(t, RuleSelectedProducts, out.Rule)
	assert.Equal(t, model.PhaseLabor, out.State.Phase)
	assert.Nil(t, out.State.PendingProducts)
	assert.Equal(t, float64(6), out.State.QuoteItems["cat-brk-20"].Qty)
	require.NotNil(t, out.Display)
	assert.Equal(t, model.DisplayAdded, out.Display.Type)
	require.Len(t, out.Display.AddedItems, 1)
	assert.Equal(t, rules.Default().LaborSuggestions, out.QuickReplies)
}

func TestSelectedProductsMalformed(t *testing.T) {
	r := newRouter(t, seedLookups(t))
	for _, msg := range []string{
		TagSelectedProducts + " not json",
		TagSelectedProducts + ` [{"name":"no id","price":1,"qty":1}]`,
		TagSelectedProducts + ` [{"id":"x","name":"negative","price":-1,"qty":1}]`,
	} {
		out := route(t, r, msg, pendingProductsState())
		assert.False(t, out.Handled, msg)
		assert.Len(t, out.State.PendingProducts, 2)
	}
}

func TestAddAllAndSkip(t *testing.T) {
	r := newRouter(t, seedLookups(t))

	added := route(t, r, "Add all", pendingProductsState())
	require.True(t, added.Handled)
	assert.Equal(t, RuleAddAll, added.Rule)
	assert.Equal(t, float64(12), added.State.QuoteItems["cat-brk-20"].Qty)
	assert.Len(t, added.State.QuoteItems, 2)
	assert.Equal(t, model.PhaseLabor, added.State.Phase)

	skipped := route(t, r, "skip", pendingProductsState())
	require.True(t, skipped.Handled)
	assert.Equal(t, RuleSkipProducts, skipped.Rule)
	assert.Nil(t, skipped.State.PendingProducts)
	assert.Empty(t, skipped.State.QuoteItems)
	assert.Equal(t, model.PhaseProducts, skipped.State.Phase)
}

func TestLaborUsesUserRate(t *testing.T) {
	state := model.ConversationState{Phase: model.PhaseLabor}
	out := newRouter(t, seedLookups(t)).Route(context.Background(), model.TurnRequest{
		UserMessage:  "8 hours",
		State:        &state,
		UserSettings: &model.UserSettings{DefaultLaborRate: model.Float(75)},
	})

	require.True(t, out.Handled)
	assert.Equal(t, RuleLabor, out.Rule)
	require.NotNil(t, out.State.LaborHours)
	require.NotNil(t, out.State.LaborRate)
	assert.Equal(t, 8.0, *out.State.LaborHours)
	assert.Equal(t, 75.0, *out.State.LaborRate)
	assert.Equal(t, model.PhaseMarkup, out.State.Phase)
}

func TestLaborFallbackRate(t *testing.T) {
	out := route(t, newRouter(t, seedLookups(t)), "6.5 hrs", model.ConversationState{Phase: model.PhaseLabor})
	require.True(t, out.Handled)
	assert.Equal(t, 6.5, *out.State.LaborHours)
	assert.Equal(t, 85.0, *out.State.LaborRate)
}

func TestLaborOnlyInLaborPhase(t *testing.T) {
	out := route(t, newRouter(t, seedLookups(t)), "8 hours", model.ConversationState{Phase: model.PhaseProducts})
	assert.False(t, out.Handled)
	assert.Nil(t, out.State.LaborHours)
}

func TestMarkup(t *testing.T) {
	r := newRouter(t, seedLookups(t))
	tests := []struct {
		msg  string
		want float64
	}{
		{msg: "no markup", want: 0},
		{msg: "0%", want: 0},
		{msg: "15%", want: 15},
		{msg: "20 percent", want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			out := route(t, r, tt.msg, model.ConversationState{Phase: model.PhaseMarkup})
			require.True(t, out.Handled)
			require.NotNil(t, out.State.MarkupPercent)
			assert.Equal(t, tt.want, *out.State.MarkupPercent)
			assert.Equal(t, model.PhaseReview, out.State.Phase)
			require.NotNil(t, out.Display)
			assert.Equal(t, model.DisplaySummary, out.Display.Type)
		})
	}

	miss := route(t, r, "what do most people charge?", model.ConversationState{Phase: model.PhaseMarkup})
	assert.False(t, miss.Handled)
}

func TestFinalizeConfirmation(t *testing.T) {
	state := model.ConversationState{
		Phase:             model.PhaseReview,
		TradecraftJobType: "panel_upgrade",
		QuoteItems:        map[string]model.QuoteItem{"a": {Name: "Panel", UnitPrice: 100, Qty: 1}},
	}
	out := route(t, newRouter(t, seedLookups(t)), "yes, finalize", state)

	require.True(t, out.Handled)
	assert.Equal(t, RuleFinalize, out.Rule)
	assert.True(t, out.State.IsComplete)
	assert.Equal(t, model.PhaseDone, out.State.Phase)
	assert.Equal(t, "Panel Upgrade Quote", out.State.QuoteName)
}

func TestFinalizeWithoutJobTypeStillNamesQuote(t *testing.T) {
	out := route(t, newRouter(t, seedLookups(t)), "ok", model.ConversationState{Phase: model.PhaseReview})
	require.True(t, out.Handled)
	assert.NotEmpty(t, out.State.QuoteName)
}

func TestResetFromAnyPhase(t *testing.T) {
	r := newRouter(t, seedLookups(t))
	for _, phase := range []model.Phase{"", model.PhaseScoping, model.PhaseProducts, model.PhaseReview, model.PhaseDone} {
		state := model.ConversationState{
			Phase:             phase,
			Messages:          []model.Message{{Role: model.RoleUser, Content: "hi"}},
			QuoteItems:        map[string]model.QuoteItem{"a": {Name: "A", Qty: 1}},
			QuoteName:         "Old",
			LaborHours:        model.Float(3),
			TradecraftJobType: "panel_upgrade",
			IsComplete:        phase == model.PhaseDone,
		}
		out := route(t, r, "Start new quote", state)
		require.True(t, out.Handled)
		assert.Equal(t, RuleReset, out.Rule)
		assert.Equal(t, quote.Reset(), out.State)
		assert.Equal(t, rules.Default().RestartGreeting, out.Message)
	}
}

func TestRouteDoesNotMutateInput(t *testing.T) {
	state := pendingProductsState()
	before := state.Clone()
	_ = route(t, newRouter(t, seedLookups(t)), "add all", state)
	assert.Equal(t, before, state)
}
