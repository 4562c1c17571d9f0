// Package risk flags threshold breaches in a metrics bundle.
package risk

import (
	"fmt"
	"sort"

	"finstory/pkg/core/analysis"
)

// Severity of a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Finding categories.
const (
	CategoryGrowth        = "growth"
	CategoryProfitability = "profitability"
	CategoryLiquidity     = "liquidity"
	CategoryLeverage      = "leverage"
)

// Finding titles.
const (
	TitleRevenueDecline      = "Revenue Decline"
	TitleMarginCompression   = "Margin Compression"
	TitleNegativeFCF         = "Sustained Negative Free Cash Flow"
	TitleLowRunway           = "Low Cash Runway"
	TitleLowLiquidity        = "Low Liquidity Ratio"
	TitleHighLeverage        = "High Leverage"
	TitleLowNetMargin        = "Low Net Margin"
	TitleNegativeOperatingCF = "Negative Operating Cash Flow"
)

// Finding is one flagged risk.
type Finding struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	Indicators  []string `json:"indicators,omitempty"`
	MetricValue float64  `json:"metric_value"`
}

// Key identifies a finding for deduplication.
func (f Finding) Key() string {
	return f.Category + "|" + f.Title
}

// Thresholds configure the rule set. Growth and margin thresholds are in
// percent or percentage points; the rest are plain ratios or period counts.
type Thresholds struct {
	RevenueDecline       float64 `yaml:"revenue_decline" json:"revenue_decline"`
	RevenueDeclineSevere float64 `yaml:"revenue_decline_severe" json:"revenue_decline_severe"`
	MarginDecline        float64 `yaml:"margin_decline" json:"margin_decline"`
	NegativeFCFPeriods   int     `yaml:"negative_fcf_periods" json:"negative_fcf_periods" validate:"gte=1"`
	RunwayPeriods        float64 `yaml:"runway_periods" json:"runway_periods" validate:"gte=0"`
	CurrentRatioLow      float64 `yaml:"current_ratio_low" json:"current_ratio_low" validate:"gte=0"`
	CurrentRatioCritical float64 `yaml:"current_ratio_critical" json:"current_ratio_critical" validate:"gte=0"`
	DebtToEquityHigh     float64 `yaml:"debt_to_equity_high" json:"debt_to_equity_high" validate:"gte=0"`
	NetMarginLow         float64 `yaml:"net_margin_low" json:"net_margin_low"`
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RevenueDecline:       -5,
		RevenueDeclineSevere: -15,
		MarginDecline:        -3,
		NegativeFCFPeriods:   2,
		RunwayPeriods:        6,
		CurrentRatioLow:      1.0,
		CurrentRatioCritical: 0.5,
		DebtToEquityHigh:     2.0,
		NetMarginLow:         5,
	}
}

// Classify evaluates every rule against the bundle. It is pure: the same bundle
// and thresholds always give the same ordered findings. Rules whose inputs are
// unavailable are skipped.
func Classify(b *analysis.Bundle, th Thresholds) []Finding {
	if b == nil {
		return []Finding{}
	}
	var found []Finding

	// Revenue decline
	if g, ok := b.Value(analysis.RevenueMetrics, analysis.GrowthRate); ok && g < th.RevenueDecline {
		sev := SeverityMedium
		if g < th.RevenueDeclineSevere {
			sev = SeverityHigh
		}
		found = append(found, Finding{
			Category:    CategoryGrowth,
			Severity:    sev,
			Title:       TitleRevenueDecline,
			Description: fmt.Sprintf("Revenue declined %.2f%% versus the prior period", g),
			Impact:      "Reduced profitability and potential market share loss",
			Indicators:  []string{fmt.Sprintf("Revenue growth: %.2f%%", g)},
			MetricValue: g,
		})
	}

	// Margin compression: gross, then operating, then net
	for _, name := range []string{analysis.GrossMarginDelta, analysis.OperatingMarginDelta, analysis.NetMarginDelta} {
		d, ok := b.Value(analysis.Margins, name)
		if !ok {
			continue
		}
		if d < th.MarginDecline {
			found = append(found, Finding{
				Category:    CategoryProfitability,
				Severity:    SeverityMedium,
				Title:       TitleMarginCompression,
				Description: fmt.Sprintf("%s fell %.2f points versus the prior period", marginLabel(name), -d),
				Impact:      "Reduced profitability despite revenue performance",
				Indicators:  []string{fmt.Sprintf("%s change: %.2f pts", marginLabel(name), d)},
				MetricValue: d,
			})
		}
		break
	}

	// Sustained negative free cash flow
	if n, ok := b.Value(analysis.CashFlow, analysis.NegativeFCFStreak); ok && int(n) >= th.NegativeFCFPeriods {
		found = append(found, Finding{
			Category:    CategoryLiquidity,
			Severity:    SeverityHigh,
			Title:       TitleNegativeFCF,
			Description: fmt.Sprintf("Free cash flow has been negative for %d consecutive periods", int(n)),
			Impact:      "Operations and investment are consuming cash reserves",
			Indicators:  []string{fmt.Sprintf("Negative FCF periods: %d", int(n))},
			MetricValue: n,
		})
	}

	// Runway
	if r, ok := b.Value(analysis.CashFlow, analysis.RunwayPeriods); ok && r < th.RunwayPeriods {
		found = append(found, Finding{
			Category:    CategoryLiquidity,
			Severity:    SeverityHigh,
			Title:       TitleLowRunway,
			Description: fmt.Sprintf("Only %.1f periods of cash remaining at the current burn rate", r),
			Impact:      "Urgent need for funding or profitability improvement",
			Indicators:  []string{fmt.Sprintf("Cash runway: %.1f periods", r)},
			MetricValue: r,
		})
	}

	// Liquidity
	if cr, ok := b.Value(analysis.FinancialRatios, analysis.CurrentRatio); ok && cr < th.CurrentRatioLow {
		sev := SeverityMedium
		if cr < th.CurrentRatioCritical {
			sev = SeverityHigh
		}
		found = append(found, Finding{
			Category:    CategoryLiquidity,
			Severity:    sev,
			Title:       TitleLowLiquidity,
			Description: fmt.Sprintf("Current ratio of %.2f indicates potential liquidity stress", cr),
			Impact:      "May struggle to meet short-term obligations",
			Indicators:  []string{fmt.Sprintf("Current ratio: %.2f", cr)},
			MetricValue: cr,
		})
	}

	// Leverage
	if de, ok := b.Value(analysis.FinancialRatios, analysis.DebtToEquity); ok && de > th.DebtToEquityHigh {
		found = append(found, Finding{
			Category:    CategoryLeverage,
			Severity:    SeverityMedium,
			Title:       TitleHighLeverage,
			Description: fmt.Sprintf("Debt-to-equity ratio of %.2f indicates high leverage", de),
			Impact:      "Increased financial risk and interest burden",
			Indicators:  []string{fmt.Sprintf("D/E ratio: %.2f", de)},
			MetricValue: de,
		})
	}

	// Thin or negative net margin
	if nm, ok := b.Value(analysis.Margins, analysis.NetMargin); ok && nm < th.NetMarginLow {
		sev := SeverityLow
		if nm < 0 {
			sev = SeverityMedium
		}
		found = append(found, Finding{
			Category:    CategoryProfitability,
			Severity:    sev,
			Title:       TitleLowNetMargin,
			Description: fmt.Sprintf("Net profit margin is only %.2f%%", nm),
			Impact:      "Limited buffer for operational challenges or market changes",
			Indicators:  []string{fmt.Sprintf("Net margin: %.2f%%", nm)},
			MetricValue: nm,
		})
	}

	// Operating cash burn
	if ocf, ok := b.Value(analysis.CashFlow, analysis.OperatingCashFlow); ok && ocf < 0 {
		found = append(found, Finding{
			Category:    CategoryLiquidity,
			Severity:    SeverityHigh,
			Title:       TitleNegativeOperatingCF,
			Description: fmt.Sprintf("Operating cash flow is negative at %.2f", ocf),
			Impact:      "The company is burning cash from core operations",
			Indicators:  []string{"Negative operating cash flow"},
			MetricValue: ocf,
		})
	}

	return Dedupe(found)
}

// Dedupe collapses findings sharing (category, title). The survivor keeps the
// first detection position and the higher severity. The result is stably
// sorted by severity, most severe first.
func Dedupe(findings []Finding) []Finding {
	out := make([]Finding, 0, len(findings))
	index := make(map[string]int, len(findings))
	for _, f := range findings {
		if i, seen := index[f.Key()]; seen {
			if f.Severity.Rank() > out[i].Severity.Rank() {
				out[i] = f
			}
			continue
		}
		index[f.Key()] = len(out)
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// Titles returns the finding titles in order.
func Titles(findings []Finding) []string {
	titles := make([]string, len(findings))
	for i, f := range findings {
		titles[i] = f.Title
	}
	return titles
}

// HighestSeverity returns the most severe level among findings, or "" if none.
func HighestSeverity(findings []Finding) Severity {
	var top Severity
	for _, f := range findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}

func marginLabel(name string) string {
	switch name {
	case analysis.GrossMarginDelta:
		return "Gross margin"
	case analysis.OperatingMarginDelta:
		return "Operating margin"
	}
	return "Net margin"
}
