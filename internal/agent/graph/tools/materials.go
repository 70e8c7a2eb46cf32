package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/agent/quote"
)

type searchMaterialsInput struct {
	Terms    []string `json:"terms"`
	Category string   `json:"category,omitempty"`
}

func searchMaterials() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolSearchMaterials,
			Desc: "Search priced materials. The user's own price list is preferred over the shared catalog. " +
				"Results are shown to the user to pick from; add them with add_items only after the user chooses.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"terms": {
					Type:     schema.Array,
					Desc:     "One or more search phrases, e.g. [\"20A breaker\", \"AFCI breaker\"].",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
				"category": {
					Type: schema.String,
					Desc: "Optional catalog category such as electrical or plumbing. Defaults to the job's trade.",
				},
			}),
		},
		func(ctx context.Context, env Env, state model.ConversationState, in searchMaterialsInput) (Result, error) {
			terms := make([]string, 0, len(in.Terms))
			for _, t := range in.Terms {
				if t = strings.TrimSpace(t); t != "" {
					terms = append(terms, t)
				}
			}
			if len(terms) == 0 {
				return Result{}, errors.New("at least one search term is required")
			}

			categories := env.Rules.CategoryFilter(state.TradecraftJobType)
			if c := strings.ToLower(strings.TrimSpace(in.Category)); c != "" && len(categories) == 0 {
				categories = []string{c}
			}

			products, err := env.Lookups.Materials.Search(ctx, model.MaterialQuery{
				Terms:      terms,
				UserID:     env.UserID,
				Categories: categories,
				Limit:      env.Config.MaxSearchResults,
			})
			if err != nil {
				return Result{}, fmt.Errorf("material search: %w", err)
			}
			if len(products) == 0 {
				return Result{
					Text:  fmt.Sprintf("No materials found for %s. Ask the user to describe the item differently.", quoteList(terms)),
					State: state,
				}, nil
			}

			state.PendingProducts = products
			state.PendingChecklist = nil
			state.Advance(model.PhaseProducts)

			var b strings.Builder
			fmt.Fprintf(&b, "Found %d products, now shown to the user:\n", len(products))
			for _, p := range products {
				unit := p.Unit
				if unit == "" {
					unit = "ea"
				}
				fmt.Fprintf(&b, "- id=%s %s %s/%s (%s)\n", p.ID, p.Name, quote.Money(p.Price), unit, p.Source)
			}
			b.WriteString("Ask the user which ones to add and how many.")
			return Result{Text: b.String(), State: state}, nil
		},
	)
}
