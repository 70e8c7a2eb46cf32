// Package router answers the unambiguous turns of a quote conversation without calling the model.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/quote"
	"github.com/drew-quote-core/server/internal/agent/rules"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// Rule names, reported in Outcome.Rule and in metrics.
const (
	RuleReset            = "reset"
	RuleSelectedProducts = "selected_products"
	RuleAddAll           = "add_all"
	RuleSkipProducts     = "skip_products"
	RuleJobType          = "job_type"
	RuleScopingAnswer    = "scoping_answer"
	RuleChecklistConfirm = "checklist_confirm"
	RuleSkipChecklist    = "skip_checklist"
	RuleLabor            = "labor"
	RuleMarkup           = "markup"
	RuleFinalize         = "finalize"
)

// perCategory caps the candidates kept for each confirmed checklist category.
const perCategory = 2

var (
	productReplies   = []string{"Add all", "Skip"}
	finalizedReplies = []string{"Start new quote"}
)

// Outcome is the result of routing one turn. When Handled is false, State is the
// snapshot the orchestrator continues from; it may already carry partial progress.
type Outcome struct {
	Handled      bool
	Rule         string
	State        model.ConversationState
	Message      string
	QuickReplies []string
	Display      *model.Display
}

type Router struct {
	rules   *rules.Rules
	lookups model.Lookups
	cfg     model.AgentConfig
}

func New(r *rules.Rules, lookups model.Lookups, cfg model.AgentConfig) *Router {
	return &Router{rules: r, lookups: lookups, cfg: cfg}
}

// Route applies the rule table in order; the first rule that matches wins.
func (r *Router) Route(ctx context.Context, req model.TurnRequest) Outcome {
	var state model.ConversationState
	if req.State != nil {
		state = req.State.Clone()
	}
	msg := strings.TrimSpace(req.UserMessage)
	t := &turn{router: r, ctx: ctx, req: req, msg: msg, state: state}

	out := t.route()
	if out.Handled {
		logx.Debug().
			Str("rule", out.Rule).
			Str("phase", string(out.State.CurrentPhase())).
			Int("rules_version", r.rules.Version).
			Msg("router handled turn")
	}
	return out
}

type turn struct {
	router *Router
	ctx    context.Context
	req    model.TurnRequest
	msg    string
	state  model.ConversationState
}

func (t *turn) route() Outcome {
	rs := t.router.rules

	if rs.IsReset(t.msg) {
		return Outcome{
			Handled:      true,
			Rule:         RuleReset,
			State:        quote.Reset(),
			Message:      rs.RestartGreeting,
			QuickReplies: rs.JobSuggestions,
		}
	}

	if tag, payload, ok := splitTag(t.msg); ok {
		switch tag {
		case TagSelectedProducts:
			return t.selectedProducts(payload)
		case TagConfirmChecklist:
			return t.confirmTagged(payload)
		}
	}

	if len(t.state.PendingProducts) > 0 {
		switch {
		case rs.IsAddAll(t.msg):
			return t.addAll()
		case rs.IsSkipProducts(t.msg):
			return t.skipProducts()
		}
	}

	if out, ok := t.jobType(); ok {
		return out
	}
	if out, ok := t.scopingAnswer(); ok {
		return out
	}

	if len(t.state.PendingChecklist) > 0 {
		if out, ok := t.confirmNatural(); ok {
			return out
		}
		if rs.IsSkipChecklist(t.msg) {
			return t.skipChecklist()
		}
	}

	phase := t.state.CurrentPhase()
	if phase == model.PhaseLabor {
		if hours, ok := rs.ParseLaborHours(t.msg); ok {
			return t.labor(hours)
		}
	}
	if phase == model.PhaseMarkup {
		if pct, ok := rs.ParseMarkup(t.msg); ok {
			return t.markup(pct)
		}
	}
	if phase == model.PhaseReview && rs.IsAffirmation(t.msg) {
		return t.finalize()
	}
	return t.fallThrough()
}

func (t *turn) fallThrough() Outcome {
	return Outcome{State: t.state}
}

// reply records the exchange in the log and returns a handled outcome.
func (t *turn) reply(rule string, state model.ConversationState, message string, quickReplies []string, display *model.Display) Outcome {
	state.AppendMessages(
		model.Message{Role: model.RoleUser, Content: t.req.UserMessage},
		model.Message{Role: model.RoleAssistant, Content: message},
	)
	return Outcome{
		Handled:      true,
		Rule:         rule,
		State:        state,
		Message:      message,
		QuickReplies: quickReplies,
		Display:      display,
	}
}

func (t *turn) lookupCtx() (context.Context, context.CancelFunc) {
	if d := t.router.cfg.LookupTimeout; d > 0 {
		return context.WithTimeout(t.ctx, d)
	}
	return context.WithCancel(t.ctx)
}

func (t *turn) selectedProducts(payload string) Outcome {
	selection, err := decodeSelection(payload)
	if err != nil {
		logx.Warn().Err(err).Msg("ignoring malformed product selection")
		return t.fallThrough()
	}
	if len(selection) == 0 {
		return t.skipProducts()
	}

	items := make([]quote.Item, 0, len(selection))
	for _, p := range selection {
		items = append(items, quote.Item{ID: p.ID, Name: p.Name, UnitPrice: p.Price, Qty: p.Qty, Unit: p.Unit})
	}
	return t.addToQuote(RuleSelectedProducts, items)
}

func (t *turn) addAll() Outcome {
	return t.addToQuote(RuleAddAll, quote.ItemsFromProducts(t.state.PendingProducts))
}

func (t *turn) addToQuote(rule string, items []quote.Item) Outcome {
	next, err := quote.AddItems(t.state, items)
	if err != nil {
		logx.Warn().Err(err).Str("rule", rule).Msg("rejecting product selection")
		return t.fallThrough()
	}
	next.PendingProducts = nil
	next.Advance(model.PhaseLabor)

	added := make([]model.AddedItem, 0, len(items))
	for _, it := range items {
		line := next.QuoteItems[it.ID]
		added = append(added, model.AddedItem{ID: it.ID, Name: line.Name, UnitPrice: line.UnitPrice, Qty: line.Qty, Unit: line.Unit})
	}

	noun := "items"
	if len(added) == 1 {
		noun = "item"
	}
	message := fmt.Sprintf("Added %d %s to your quote. How many hours of labor will this job take?", len(added), noun)
	return t.reply(rule, next, message, t.router.rules.LaborSuggestions, &model.Display{Type: model.DisplayAdded, AddedItems: added})
}

func (t *turn) skipProducts() Outcome {
	next := t.state.Clone()
	next.PendingProducts = nil
	message := "No problem, I skipped those. Tell me what else you need, or we can move on to labor."
	return t.reply(RuleSkipProducts, next, message, []string{"Set labor"}, nil)
}

// jobType handles the keyword shortcut. It also fires before any phase is set,
// as long as no job type has been chosen yet.
func (t *turn) jobType() (Outcome, bool) {
	phase := t.state.CurrentPhase()
	if phase != model.PhaseJobSelection && !(phase == model.PhaseGreeting && t.state.TradecraftJobType == "") {
		return Outcome{}, false
	}
	jobType, ok := t.router.rules.MatchJobType(t.msg)
	if !ok {
		return Outcome{}, false
	}
	if t.state.TradecraftJobType != "" && t.state.TradecraftJobType != jobType {
		return Outcome{}, false
	}

	ctx, cancel := t.lookupCtx()
	defer cancel()
	doc, err := t.router.lookups.Knowledge.GetByJobType(ctx, jobType)
	if err != nil {
		logx.Warn().Err(err).Str("job_type", jobType).Msg("job type lookup failed")
		return Outcome{}, false
	}
	if doc == nil || len(doc.ScopingQuestions) == 0 {
		logx.Debug().Str("job_type", jobType).Msg("no scoping questions for job type")
		return Outcome{}, false
	}

	next := t.state.Clone()
	next.TradecraftJobType = jobType
	next.TradecraftContext = doc.Content
	next.ScopingQuestions = doc.ScopingQuestions
	next.CurrentQuestionIndex = 0
	next.ScopingAnswers = map[string]string{}
	next.Advance(model.PhaseScoping)

	first := doc.ScopingQuestions[0]
	title := doc.Title
	if title == "" {
		title = jobType
	}
	message := fmt.Sprintf("%s it is. %s", title, first.Question)
	return t.reply(RuleJobType, next, message, first.QuickReplies, nil), true
}

func (t *turn) scopingAnswer() (Outcome, bool) {
	if t.state.CurrentPhase() != model.PhaseScoping {
		return Outcome{}, false
	}
	q, ok := t.state.CurrentQuestion()
	if !ok {
		return Outcome{}, false
	}
	answer, ok := MatchOption(t.msg, q.QuickReplies)
	if !ok {
		return Outcome{}, false
	}

	next := t.state.Clone()
	if next.ScopingAnswers == nil {
		next.ScopingAnswers = map[string]string{}
	}
	key := q.StoreAs
	if key == "" {
		key = fmt.Sprintf("question_%d", next.CurrentQuestionIndex)
	}
	next.ScopingAnswers[key] = answer
	next.CurrentQuestionIndex++

	if q, more := next.CurrentQuestion(); more {
		return t.reply(RuleScopingAnswer, next, q.Question, q.QuickReplies, nil), true
	}

	ctx, cancel := t.lookupCtx()
	defer cancel()
	items, err := t.router.lookups.Checklists.GetChecklist(ctx, next.TradecraftJobType)
	if err != nil {
		logx.Warn().Err(err).Str("job_type", next.TradecraftJobType).Msg("checklist lookup failed")
	}
	if len(items) == 0 {
		t.state = next
		return Outcome{}, false
	}

	next.PendingChecklist = items
	next.PendingProducts = nil
	next.Advance(model.PhaseChecklist)
	message := "Thanks, that's everything I need. Here's the materials checklist for this job. Uncheck anything you don't need, then confirm."
	return t.reply(RuleScopingAnswer, next, message, []string{}, nil), true
}

func (t *turn) confirmTagged(payload string) Outcome {
	if len(t.state.PendingChecklist) == 0 {
		logx.Warn().Msg("checklist confirmation without a pending checklist")
		return t.fallThrough()
	}
	cats, err := decodeCategories(payload)
	if err != nil {
		logx.Warn().Err(err).Msg("ignoring malformed checklist confirmation")
		return t.fallThrough()
	}
	want := make(map[string]bool, len(cats))
	for _, c := range cats {
		want[strings.TrimSpace(c)] = true
	}
	var chosen []model.ChecklistItem
	for _, it := range t.state.PendingChecklist {
		if want[it.Category] {
			chosen = append(chosen, it)
		}
	}
	if len(chosen) == 0 {
		return t.skipChecklist()
	}
	return t.confirm(chosen)
}

func (t *turn) confirmNatural() (Outcome, bool) {
	rs := t.router.rules
	if rs.IsAffirmation(t.msg) {
		var required []model.ChecklistItem
		for _, it := range t.state.PendingChecklist {
			if it.Required {
				required = append(required, it)
			}
		}
		if len(required) == 0 {
			required = t.state.PendingChecklist
		}
		return t.confirm(required), true
	}

	needle, ok := rs.OnlyItem(t.msg)
	if !ok {
		return Outcome{}, false
	}
	needle = strings.ToLower(needle)
	var chosen []model.ChecklistItem
	for _, it := range t.state.PendingChecklist {
		if strings.Contains(strings.ToLower(it.Name), needle) || strings.Contains(strings.ToLower(it.Category), needle) {
			chosen = append(chosen, it)
		}
	}
	if len(chosen) == 0 {
		return Outcome{}, false
	}
	return t.confirm(chosen), true
}

// confirm searches materials for each category in order. Product ids are deduplicated
// across all categories and each category keeps at most perCategory candidates.
func (t *turn) confirm(items []model.ChecklistItem) Outcome {
	filter := t.router.rules.CategoryFilter(t.state.TradecraftJobType)
	seen := make(map[string]bool)
	var found []model.PricedProduct

	for _, it := range items {
		terms := it.SearchTerms
		if len(terms) == 0 {
			terms = []string{it.Name}
		}
		products, err := t.search(model.MaterialQuery{
			Terms:      terms,
			UserID:     t.req.UserID,
			Categories: filter,
			Limit:      t.router.cfg.MaxSearchResults,
		})
		if err != nil {
			logx.Warn().Err(err).Str("category", it.Category).Msg("material search failed")
			continue
		}
		kept := 0
		for _, p := range products {
			if kept == perCategory {
				break
			}
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			p.SuggestedQty = it.DefaultQty
			p.ChecklistCategory = it.Category
			found = append(found, p)
			kept++
		}
	}

	next := t.state.Clone()
	next.PendingChecklist = nil
	next.PendingProducts = found
	next.Advance(model.PhaseProducts)

	if len(found) == 0 {
		message := "I couldn't find priced materials for those items. Tell me what to search for and I'll look again."
		return t.reply(RuleChecklistConfirm, next, message, []string{"Set labor"}, nil)
	}
	message := fmt.Sprintf("Here's what I found for %d %s. Pick what you want on the quote, or add them all.", len(items), plural(len(items), "category", "categories"))
	return t.reply(RuleChecklistConfirm, next, message, productReplies, nil)
}

func (t *turn) search(q model.MaterialQuery) ([]model.PricedProduct, error) {
	ctx, cancel := t.lookupCtx()
	defer cancel()
	return t.router.lookups.Materials.Search(ctx, q)
}

func (t *turn) skipChecklist() Outcome {
	next := t.state.Clone()
	next.PendingChecklist = nil
	next.Advance(model.PhaseProducts)
	message := "Skipped the checklist. Tell me which materials you need and I'll look them up."
	return t.reply(RuleSkipChecklist, next, message, nil, nil)
}

func (t *turn) labor(hours float64) Outcome {
	rate := t.router.cfg.FallbackLaborRate
	if s := t.req.UserSettings; s != nil && s.DefaultLaborRate != nil && *s.DefaultLaborRate >= 0 {
		rate = *s.DefaultLaborRate
	}
	next, err := quote.SetLabor(t.state, hours, rate)
	if err != nil {
		return t.fallThrough()
	}
	message := fmt.Sprintf("Got it: %g hours at %s/hr. What markup would you like on materials?", hours, quote.Money(rate))
	return t.reply(RuleLabor, next, message, t.router.rules.MarkupSuggestions, nil)
}

func (t *turn) markup(pct float64) Outcome {
	next, err := quote.SetMarkup(t.state, pct)
	if err != nil {
		return t.fallThrough()
	}
	summary := quote.Summarize(next)
	lead := fmt.Sprintf("Markup set to %g%%.", pct)
	if pct == 0 {
		lead = "No markup, got it."
	}
	message := fmt.Sprintf("%s Here's your quote:\n\n%s\n\nReady to finalize?", lead, quote.FormatSummary(next))
	return t.reply(RuleMarkup, next, message, t.router.rules.ReviewSuggestions, &model.Display{Type: model.DisplaySummary, Summary: &summary})
}

func (t *turn) finalize() Outcome {
	next := quote.Finalize(t.state)
	summary := quote.Summarize(next)
	message := fmt.Sprintf("Your quote %q is finalized. Total: %s.", next.QuoteName, quote.Money(summary.GrandTotal))
	return t.reply(RuleFinalize, next, message, finalizedReplies, &model.Display{Type: model.DisplaySummary, Summary: &summary})
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
