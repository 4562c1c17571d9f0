package analysis

import (
	"errors"
	"fmt"

	"finstory/pkg/core/calc"
)

// Category groups related metrics in a Bundle.
type Category string

const (
	RevenueMetrics  Category = "revenue_metrics"
	ProfitMetrics   Category = "profit_metrics"
	Margins         Category = "margins"
	CashFlow        Category = "cash_flow"
	FinancialRatios Category = "financial_ratios"
	Trends          Category = "trends"
)

// Categories lists every category in presentation order.
var Categories = []Category{RevenueMetrics, ProfitMetrics, Margins, CashFlow, FinancialRatios, Trends}

// Metric names used across the engine, the risk rules and the synthesizer.
const (
	CurrentValue  = "current_value"
	PreviousValue = "previous_value"
	GrowthRate    = "growth_rate"
	GrowthAmount  = "growth_amount"
	CAGR          = "cagr"

	GrossMargin          = "gross_margin"
	OperatingMargin      = "operating_margin"
	NetMargin            = "net_margin"
	GrossMarginDelta     = "gross_margin_delta"
	OperatingMarginDelta = "operating_margin_delta"
	NetMarginDelta       = "net_margin_delta"

	OperatingCashFlow    = "operating_cash_flow"
	AvgOperatingCashFlow = "avg_operating_cash_flow"
	CapitalExpenditures  = "capital_expenditures"
	FreeCashFlow         = "free_cash_flow"
	NegativeFCFStreak    = "negative_fcf_streak"
	CashPosition         = "cash_position"
	RunwayPeriods        = "runway_periods"
	CashConversionCycle  = "cash_conversion_cycle"

	CurrentRatio   = "current_ratio"
	QuickRatio     = "quick_ratio"
	DebtToEquity   = "debt_to_equity"
	ReturnOnEquity = "return_on_equity"
	ReturnOnAssets = "return_on_assets"
	AssetTurnover  = "asset_turnover"
)

// AssumptionZeroCapex is recorded when missing capex was treated as zero.
const AssumptionZeroCapex = "capex_assumed_zero"

// Bundle is the immutable metrics snapshot for one pipeline run.
type Bundle struct {
	Categories  map[Category]map[string]calc.Metric `json:"categories"`
	Trends      map[string]calc.Trend               `json:"trends"`
	Periods     int                                 `json:"periods"`
	LatestLabel string                              `json:"latest_label"`
	Assumptions []string                            `json:"assumptions,omitempty"`
}

// Metric looks up a metric; an unknown name is reported as unavailable.
func (b *Bundle) Metric(c Category, name string) calc.Metric {
	if b == nil {
		return calc.Unavailable("no metrics")
	}
	if m, ok := b.Categories[c][name]; ok {
		return m
	}
	return calc.Unavailable("not computed")
}

// Value is shorthand for Metric(c, name).Get().
func (b *Bundle) Value(c Category, name string) (float64, bool) {
	return b.Metric(c, name).Get()
}

// ErrInsufficientData is the sentinel behind InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError is returned when the series cannot support any analysis.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
