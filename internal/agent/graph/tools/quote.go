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

type itemInput struct {
	ProductID string   `json:"product_id"`
	Name      string   `json:"name"`
	UnitPrice *float64 `json:"unit_price"`
	Qty       float64  `json:"qty"`
	Unit      string   `json:"unit"`
}

type addItemsInput struct {
	Items []itemInput `json:"items"`
}

func addItems() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolAddItems,
			Desc: "Add products to the quote. Qty is the total quantity wanted, not an increment; " +
				"adding a product that is already on the quote replaces its quantity.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"items": {
					Type:     schema.Array,
					Desc:     "Products to add.",
					Required: true,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"product_id": {Type: schema.String, Desc: "Product id from search results.", Required: true},
							"name":       {Type: schema.String, Desc: "Product name."},
							"unit_price": {Type: schema.Number, Desc: "Unit price in dollars."},
							"qty":        {Type: schema.Number, Desc: "Total quantity.", Required: true},
							"unit":       {Type: schema.String, Desc: "Unit, e.g. ea or ft."},
						},
					},
				},
			}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, in addItemsInput) (Result, error) {
			if len(in.Items) == 0 {
				return Result{}, errors.New("items is required")
			}
			pending := make(map[string]model.PricedProduct, len(state.PendingProducts))
			for _, p := range state.PendingProducts {
				pending[p.ID] = p
			}

			items := make([]quote.Item, 0, len(in.Items))
			for _, it := range in.Items {
				id := strings.TrimSpace(it.ProductID)
				item := quote.Item{ID: id, Name: strings.TrimSpace(it.Name), Qty: it.Qty, Unit: it.Unit}
				// fill gaps from the candidates the user was shown
				p, known := pending[id]
				if it.UnitPrice != nil {
					item.UnitPrice = *it.UnitPrice
				} else if known {
					item.UnitPrice = p.Price
				} else if existing, ok := state.QuoteItems[id]; ok {
					item.UnitPrice = existing.UnitPrice
				} else {
					return Result{}, fmt.Errorf("unit_price is required for unknown product %q", id)
				}
				if item.Name == "" {
					if known {
						item.Name = p.Name
					} else {
						item.Name = state.QuoteItems[id].Name
					}
				}
				if item.Unit == "" {
					if known {
						item.Unit = p.Unit
					} else {
						item.Unit = state.QuoteItems[id].Unit
					}
				}
				items = append(items, item)
			}

			next, err := quote.AddItems(state, items)
			if err != nil {
				return Result{}, err
			}
			sum := quote.Summarize(next)
			return Result{
				Text:  fmt.Sprintf("Added %d item(s). The quote has %d line(s), materials subtotal %s.", len(items), sum.ItemCount, quote.Money(sum.MaterialsSubtotal)),
				State: next,
			}, nil
		},
	)
}

type removeItemsInput struct {
	ProductIDs   []string `json:"product_ids"`
	NameContains string   `json:"name_contains"`
}

func removeItems() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolRemoveItems,
			Desc: "Remove products from the quote by id and/or by a case-insensitive name fragment.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_ids":   {Type: schema.Array, Desc: "Product ids to remove.", ElemInfo: &schema.ParameterInfo{Type: schema.String}},
				"name_contains": {Type: schema.String, Desc: "Remove every item whose name contains this text."},
			}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, in removeItemsInput) (Result, error) {
			next, n := quote.RemoveItems(state, in.ProductIDs, in.NameContains)
			if n == 0 {
				return Result{Text: "No matching items were on the quote; nothing removed.", State: next}, nil
			}
			return Result{Text: fmt.Sprintf("Removed %d item(s). %d line(s) remain.", n, len(next.QuoteItems)), State: next}, nil
		},
	)
}

type setLaborInput struct {
	Hours *float64 `json:"hours"`
	Rate  *float64 `json:"rate"`
}

func setLabor() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolSetLabor,
			Desc: "Set labor hours and optionally the hourly rate. Without a rate the user's default rate is used.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"hours": {Type: schema.Number, Desc: "Total labor hours.", Required: true},
				"rate":  {Type: schema.Number, Desc: "Hourly rate in dollars."},
			}),
		},
		func(_ context.Context, env Env, state model.ConversationState, in setLaborInput) (Result, error) {
			if in.Hours == nil {
				return Result{}, errors.New("hours is required")
			}
			rate := env.Config.FallbackLaborRate
			switch {
			case in.Rate != nil:
				rate = *in.Rate
			case env.Settings != nil && env.Settings.DefaultLaborRate != nil:
				rate = *env.Settings.DefaultLaborRate
			}
			next, err := quote.SetLabor(state, *in.Hours, rate)
			if err != nil {
				return Result{}, err
			}
			return Result{
				Text:  fmt.Sprintf("Labor set: %g hours at %s/hr (%s). Ask about markup next.", *in.Hours, quote.Money(rate), quote.Money(*in.Hours*rate)),
				State: next,
			}, nil
		},
	)
}

type setMarkupInput struct {
	Percent *float64 `json:"percent"`
}

func setMarkup() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolSetMarkup,
			Desc: "Set the materials markup percentage. Zero is allowed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"percent": {Type: schema.Number, Desc: "Markup percent, e.g. 15 for 15%.", Required: true},
			}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, in setMarkupInput) (Result, error) {
			if in.Percent == nil {
				return Result{}, errors.New("percent is required")
			}
			next, err := quote.SetMarkup(state, *in.Percent)
			if err != nil {
				return Result{}, err
			}
			return Result{Text: fmt.Sprintf("Markup set to %g%%. Review the quote with the user.", *in.Percent), State: next}, nil
		},
	)
}

func setQuoteInfo() Tool {
	return define(
		&schema.ToolInfo{
			Name: ToolSetQuoteInfo,
			Desc: "Set the quote name and client contact details. Only the fields given are changed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"quoteName":   {Type: schema.String, Desc: "Quote title."},
				"clientName":  {Type: schema.String, Desc: "Client name."},
				"clientEmail": {Type: schema.String, Desc: "Client email."},
				"clientPhone": {Type: schema.String, Desc: "Client phone."},
			}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, in quote.Info) (Result, error) {
			next := quote.SetQuoteInfo(state, in)
			return Result{Text: "Quote details updated.", State: next}, nil
		},
	)
}

type emptyInput struct{}

func getSummary() Tool {
	return define(
		&schema.ToolInfo{
			Name:        ToolGetSummary,
			Desc:        "Compute the current quote totals: materials subtotal, markup, labor and grand total.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, _ emptyInput) (Result, error) {
			return Result{Text: quote.FormatSummary(state), State: state}, nil
		},
	)
}

func finalizeQuote() Tool {
	return define(
		&schema.ToolInfo{
			Name:        ToolFinalizeQuote,
			Desc:        "Finalize the quote once the user has approved it.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(_ context.Context, _ Env, state model.ConversationState, _ emptyInput) (Result, error) {
			next := quote.Finalize(state)
			sum := quote.Summarize(next)
			return Result{
				Text:  fmt.Sprintf("Quote %q finalized. Grand total %s.", next.QuoteName, quote.Money(sum.GrandTotal)),
				State: next,
			}, nil
		},
	)
}
