package insight

import (
	"context"
	"fmt"
	"strings"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

// LocalTemplateStrategy builds a deterministic narrative from the metrics and
// the risk rules. It runs the classifier itself so it does not depend on the
// pipeline's risk stage.
type LocalTemplateStrategy struct {
	Thresholds risk.Thresholds
}

var _ Strategy = (*LocalTemplateStrategy)(nil)

func (s *LocalTemplateStrategy) Source() Source { return SourceTemplate }

func (s *LocalTemplateStrategy) Generate(_ context.Context, req Request) (Record, error) {
	return s.Build(req), nil
}

// Build assembles the template record. It never fails and always yields a
// non-empty summary.
func (s *LocalTemplateStrategy) Build(req Request) Record {
	b := req.Bundle
	findings := risk.Classify(b, s.Thresholds)

	type line struct {
		category string
		text     string
	}
	var facts []line

	if v, ok := b.Value(analysis.RevenueMetrics, analysis.CurrentValue); ok {
		text := fmt.Sprintf("Revenue of %s in %s", formatAmount(v), b.LatestLabel)
		if g, ok := b.Value(analysis.RevenueMetrics, analysis.GrowthRate); ok {
			text += fmt.Sprintf(", %+.2f%% versus the prior period", g)
		}
		facts = append(facts, line{risk.CategoryGrowth, text})
	}
	if c, ok := b.Value(analysis.RevenueMetrics, analysis.CAGR); ok {
		facts = append(facts, line{risk.CategoryGrowth, fmt.Sprintf("Revenue compound growth of %.2f%% per period across %d periods", c, b.Periods)})
	}
	if nm, ok := b.Value(analysis.Margins, analysis.NetMargin); ok {
		text := fmt.Sprintf("Net margin at %.2f%%", nm)
		if d, ok := b.Value(analysis.Margins, analysis.NetMarginDelta); ok {
			text += fmt.Sprintf(" (%+.2f pts)", d)
		}
		facts = append(facts, line{risk.CategoryProfitability, text})
	}
	if fcf, ok := b.Value(analysis.CashFlow, analysis.FreeCashFlow); ok {
		facts = append(facts, line{risk.CategoryLiquidity, fmt.Sprintf("Free cash flow of %s in the latest period", formatAmount(fcf))})
	}
	if cr, ok := b.Value(analysis.FinancialRatios, analysis.CurrentRatio); ok {
		facts = append(facts, line{risk.CategoryLiquidity, fmt.Sprintf("Current ratio of %.2f", cr)})
	}
	if de, ok := b.Value(analysis.FinancialRatios, analysis.DebtToEquity); ok {
		facts = append(facts, line{risk.CategoryLeverage, fmt.Sprintf("Debt-to-equity of %.2f", de)})
	}

	// Order facts by what the persona weighs most, keeping detection order on ties.
	ordered := make([]line, 0, len(facts))
	used := make([]bool, len(facts))
	for len(ordered) < len(facts) {
		best := -1
		for i, f := range facts {
			if used[i] {
				continue
			}
			if best < 0 || req.Profile.Weight(f.category) > req.Profile.Weight(facts[best].category) {
				best = i
			}
		}
		used[best] = true
		ordered = append(ordered, facts[best])
	}

	rec := Record{}
	for _, f := range ordered {
		rec.KeyTakeaways = append(rec.KeyTakeaways, f.text)
	}
	rec.Strengths = strengths(b)
	for _, f := range findings {
		rec.Concerns = append(rec.Concerns, fmt.Sprintf("%s: %s", f.Title, f.Description))
		if f.Severity != risk.SeverityLow {
			rec.Recommendations = append(rec.Recommendations, fmt.Sprintf("Address %s. %s", strings.ToLower(f.Title), f.Impact))
		}
	}
	rec.Summary = summary(b, req.Persona, findings)
	return rec.Normalize()
}

func strengths(b *analysis.Bundle) []string {
	var out []string
	if g, ok := b.Value(analysis.RevenueMetrics, analysis.GrowthRate); ok && g > 0 {
		out = append(out, fmt.Sprintf("Revenue grew %.2f%% versus the prior period", g))
	}
	if nm, ok := b.Value(analysis.Margins, analysis.NetMargin); ok && nm >= 10 {
		out = append(out, fmt.Sprintf("Healthy net margin of %.2f%%", nm))
	}
	if fcf, ok := b.Value(analysis.CashFlow, analysis.FreeCashFlow); ok && fcf > 0 {
		out = append(out, "Positive free cash flow")
	}
	if cr, ok := b.Value(analysis.FinancialRatios, analysis.CurrentRatio); ok && cr >= 1.5 {
		out = append(out, fmt.Sprintf("Comfortable liquidity with a current ratio of %.2f", cr))
	}
	if de, ok := b.Value(analysis.FinancialRatios, analysis.DebtToEquity); ok && de < 1 {
		out = append(out, fmt.Sprintf("Conservative leverage at %.2fx debt-to-equity", de))
	}
	return out
}

func summary(b *analysis.Bundle, persona models.Persona, findings []risk.Finding) string {
	var sb strings.Builder
	label := "the latest period"
	if b != nil && b.LatestLabel != "" {
		label = b.LatestLabel
	}
	fmt.Fprintf(&sb, "%s view of %s", persona, label)
	if b != nil {
		fmt.Fprintf(&sb, " across %d period(s)", b.Periods)
	}
	sb.WriteString(":")

	if g, ok := b.Value(analysis.RevenueMetrics, analysis.GrowthRate); ok {
		fmt.Fprintf(&sb, " revenue moved %+.2f%%", g)
		if nm, ok := b.Value(analysis.Margins, analysis.NetMargin); ok {
			fmt.Fprintf(&sb, " with a %.2f%% net margin", nm)
		}
		sb.WriteString(".")
	} else if v, ok := b.Value(analysis.RevenueMetrics, analysis.CurrentValue); ok {
		fmt.Fprintf(&sb, " revenue of %s with limited history for trend analysis.", formatAmount(v))
	} else {
		sb.WriteString(" limited data available.")
	}

	switch len(findings) {
	case 0:
		sb.WriteString(" No risk thresholds were breached.")
	case 1:
		fmt.Fprintf(&sb, " One risk flagged: %s.", findings[0].Title)
	default:
		fmt.Fprintf(&sb, " %d risks flagged, led by %s.", len(findings), findings[0].Title)
	}
	return sb.String()
}
