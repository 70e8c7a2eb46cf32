package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/model"
)

type searchKnowledgeInput struct {
	Query string `json:"query"`
	Trade string `json:"trade,omitempty"`
}

func searchKnowledgeBase() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolSearchKnowledgeBase,
			Desc: "Look up trade knowledge for the job the user describes. Returns a narrative of what the job involves, " +
				"its canonical job type, and loads scoping questions to ask. Call this once the user says what kind of job they are quoting.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Short description of the job, e.g. \"200A panel upgrade\" or \"replace 50 gallon gas water heater\".",
					Required: true,
				},
				"trade": {
					Type: schema.String,
					Desc: "Optional trade filter.",
					Enum: []string{"electrical", "plumbing", "hvac"},
				},
			}),
		},
		func(ctx context.Context, env Env, state model.ConversationState, in searchKnowledgeInput) (Result, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return Result{}, errors.New("query is required")
			}
			doc, err := env.Lookups.Knowledge.Search(ctx, query, strings.ToLower(strings.TrimSpace(in.Trade)))
			if err != nil {
				return Result{}, fmt.Errorf("knowledge search: %w", err)
			}
			if doc == nil {
				return Result{
					Text:  fmt.Sprintf("No knowledge document found for %q. Continue with general trade knowledge and ask the user for details.", query),
					State: state,
				}, nil
			}

			if current := state.TradecraftJobType; current != "" {
				if current != doc.JobType {
					return Result{
						Text: fmt.Sprintf("This quote is already for job type %q; it cannot change mid-quote. "+
							"If the user wants a different job, tell them to start a new quote.", current),
						State: state,
					}, nil
				}
				return Result{Text: fmt.Sprintf("%s (job type %s) is already loaded.\n\n%s", doc.Title, doc.JobType, doc.Content), State: state}, nil
			}

			state.TradecraftJobType = doc.JobType
			state.TradecraftContext = doc.Content

			var b strings.Builder
			fmt.Fprintf(&b, "Found: %s (job type %s).\n\n%s\n", doc.Title, doc.JobType, strings.TrimSpace(doc.Content))
			if len(doc.ScopingQuestions) == 0 {
				b.WriteString("\nNo scoping questions for this job. Propose the materials checklist next.")
				return Result{Text: b.String(), State: state}, nil
			}

			state.ScopingQuestions = doc.ScopingQuestions
			state.CurrentQuestionIndex = 0
			state.ScopingAnswers = map[string]string{}
			state.Advance(model.PhaseScoping)

			first := doc.ScopingQuestions[0]
			fmt.Fprintf(&b, "\nLoaded %d scoping questions. Ask the first one now: %q", len(doc.ScopingQuestions), first.Question)
			if len(first.QuickReplies) > 0 {
				fmt.Fprintf(&b, " Offer these quick replies: %s", quoteList(first.QuickReplies))
			}
			return Result{Text: b.String(), State: state}, nil
		},
	)
}

func proposeChecklist() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolProposeChecklist,
			Desc: "Load the materials checklist for the current job type and show it to the user for confirmation. " +
				"Call this after scoping is done. Never call it while a checklist is already waiting for confirmation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, env Env, state model.ConversationState, _ emptyInput) (Result, error) {
			if len(state.PendingChecklist) > 0 {
				return Result{
					Text: "A checklist is already waiting for the user's confirmation. Do not propose it again; " +
						"ask the user to confirm it or tell you what to change.",
					State: state,
				}, nil
			}
			jobType := state.TradecraftJobType
			if jobType == "" {
				return Result{}, errors.New("no job type yet; call search_knowledge_base first")
			}
			items, err := env.Lookups.Checklists.GetChecklist(ctx, jobType)
			if err != nil {
				return Result{}, fmt.Errorf("checklist lookup: %w", err)
			}
			if len(items) == 0 {
				return Result{
					Text:  fmt.Sprintf("No checklist exists for %s. Ask the user which materials they need and use search_materials.", jobType),
					State: state,
				}, nil
			}

			state.PendingChecklist = items
			state.PendingProducts = nil
			state.Advance(model.PhaseChecklist)

			var b strings.Builder
			fmt.Fprintf(&b, "Checklist for %s is now shown to the user:\n", jobType)
			for _, it := range items {
				req := "optional"
				if it.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "- %s [%s]: %g %s, %s", it.Name, it.Category, it.DefaultQty, it.Unit, req)
				if it.Notes != "" {
					fmt.Fprintf(&b, " (%s)", it.Notes)
				}
				b.WriteByte('\n')
			}
			b.WriteString("Ask the user to confirm the checklist. Do not list the items again; the app renders them.")
			return Result{Text: b.String(), State: state}, nil
		},
	)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}
