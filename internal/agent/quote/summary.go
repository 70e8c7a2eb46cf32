package quote

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/drew-quote-core/server/internal/agent/model"
)

// Summarize computes quote totals. It has no side effects.
func Summarize(s model.ConversationState) model.QuoteSummary {
	var sum model.QuoteSummary
	for _, it := range s.QuoteItems {
		sum.MaterialsSubtotal += it.UnitPrice * it.Qty
		sum.ItemCount++
	}
	if s.MarkupPercent != nil {
		sum.MarkupPercent = *s.MarkupPercent
	}
	if s.LaborHours != nil {
		sum.LaborHours = *s.LaborHours
	}
	if s.LaborRate != nil {
		sum.LaborRate = *s.LaborRate
	}

	sum.MaterialsSubtotal = round2(sum.MaterialsSubtotal)
	sum.MarkupAmount = round2(sum.MaterialsSubtotal * sum.MarkupPercent / 100)
	sum.LaborTotal = round2(sum.LaborHours * sum.LaborRate)
	sum.GrandTotal = round2(sum.MaterialsSubtotal + sum.MarkupAmount + sum.LaborTotal)
	return sum
}

// FormatSummary renders the quote as structured text for the model and the client.
func FormatSummary(s model.ConversationState) string {
	sum := Summarize(s)

	var b strings.Builder
	name := s.QuoteName
	if name == "" {
		name = DefaultName(s.TradecraftJobType)
	}
	fmt.Fprintf(&b, "QUOTE: %s\n", name)
	if s.ClientName != "" {
		fmt.Fprintf(&b, "Client: %s\n", s.ClientName)
	}

	b.WriteString("Materials:\n")
	if len(s.QuoteItems) == 0 {
		b.WriteString("  (none yet)\n")
	}
	for _, id := range sortedIDs(s.QuoteItems) {
		it := s.QuoteItems[id]
		unit := it.Unit
		if unit == "" {
			unit = "ea"
		}
		fmt.Fprintf(&b, "  - %s [%s]: %g %s x %s = %s\n", it.Name, id, it.Qty, unit, Money(it.UnitPrice), Money(it.UnitPrice*it.Qty))
	}

	fmt.Fprintf(&b, "Materials subtotal: %s\n", Money(sum.MaterialsSubtotal))
	if s.MarkupPercent != nil {
		fmt.Fprintf(&b, "Markup (%g%%): %s\n", sum.MarkupPercent, Money(sum.MarkupAmount))
	} else {
		b.WriteString("Markup: not set\n")
	}
	if s.LaborHours != nil {
		fmt.Fprintf(&b, "Labor: %g hrs x %s/hr = %s\n", sum.LaborHours, Money(sum.LaborRate), Money(sum.LaborTotal))
	} else {
		b.WriteString("Labor: not set\n")
	}
	fmt.Fprintf(&b, "TOTAL: %s", Money(sum.GrandTotal))
	return b.String()
}

// Money formats a dollar amount with two decimals.
func Money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func sortedIDs(items map[string]model.QuoteItem) []string {
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
