package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/graph/tools"
	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/quote"
)

//go:embed template/system_prompt.txt
var systemPrompt string

type toolNames struct {
	SearchKnowledge  string
	ProposeChecklist string
	SearchMaterials  string
	AddItems         string
	RemoveItems      string
	SetLabor         string
	SetMarkup        string
	SetQuoteInfo     string
	GetSummary       string
	FinalizeQuote    string
}

var names = toolNames{
	SearchKnowledge:  tools.ToolSearchKnowledgeBase,
	ProposeChecklist: tools.ToolProposeChecklist,
	SearchMaterials:  tools.ToolSearchMaterials,
	AddItems:         tools.ToolAddItems,
	RemoveItems:      tools.ToolRemoveItems,
	SetLabor:         tools.ToolSetLabor,
	SetMarkup:        tools.ToolSetMarkup,
	SetQuoteInfo:     tools.ToolSetQuoteInfo,
	GetSummary:       tools.ToolGetSummary,
	FinalizeQuote:    tools.ToolFinalizeQuote,
}

// RenderSystem renders the orchestrator system prompt for the given state through the
// Eino prompt component, which also fires the prompt callbacks.
func RenderSystem(ctx context.Context, state model.ConversationState, settings *model.UserSettings) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPrompt),
	)
	msgs, err := tpl.Format(ctx, vars(state, settings))
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

func vars(state model.ConversationState, settings *model.UserSettings) map[string]any {
	v := map[string]any{
		"Tools":            names,
		"Phase":            string(state.CurrentPhase()),
		"JobType":          state.TradecraftJobType,
		"Tradecraft":       strings.TrimSpace(state.TradecraftContext),
		"Quote":            quote.FormatSummary(state),
		"ChecklistPending": len(state.PendingChecklist) > 0,
		"ProductsPending":  len(state.PendingProducts),
		"Question":         "",
		"QuestionOptions":  "",
		"QuestionNumber":   0,
		"QuestionCount":    len(state.ScopingQuestions),
		"Answers":          answers(state.ScopingAnswers),
		"DefaultLaborRate": "",
		"DefaultMarkup":    "",
	}
	if q, ok := state.CurrentQuestion(); ok {
		v["Question"] = q.Question
		v["QuestionNumber"] = state.CurrentQuestionIndex + 1
		if len(q.QuickReplies) > 0 {
			quoted := make([]string, len(q.QuickReplies))
			for i, r := range q.QuickReplies {
				quoted[i] = fmt.Sprintf("%q", r)
			}
			v["QuestionOptions"] = strings.Join(quoted, ", ")
		}
	}
	if settings != nil {
		if settings.DefaultLaborRate != nil {
			v["DefaultLaborRate"] = quote.Money(*settings.DefaultLaborRate)
		}
		if settings.DefaultMarkupPercent != nil {
			v["DefaultMarkup"] = fmt.Sprintf("%g", *settings.DefaultMarkupPercent)
		}
	}
	return v
}

func answers(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%s: %s", k, v))
	}
	sort.Strings(out)
	return out
}
