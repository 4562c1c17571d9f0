// Package charts turns a period series and its metrics into chart-ready data.
// Every builder is pure. A point that cannot be computed is nil in the output
// (JSON null); nothing is interpolated or defaulted to zero.
package charts

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/calc"
	"finstory/pkg/models"
)

// Type is the visual form of a chart.
type Type string

const (
	Line      Type = "line"
	Bar       Type = "bar"
	Waterfall Type = "waterfall"
	Gauge     Type = "gauge"
)

// Chart names returned by Build.
const (
	RevenueTrend      = "revenue_trend"
	MarginAnalysis    = "margin_analysis"
	CashFlowTrend     = "cash_flow_trend"
	KeyMetrics        = "key_metrics"
	CashFlowWaterfall = "cash_flow_waterfall"
	RatioGauges       = "ratio_gauges"
)

// Dataset is one line or bar group aligned to the chart labels.
type Dataset struct {
	Label string     `json:"label"`
	Data  []*float64 `json:"data"`
}

// Step is one bar of a waterfall.
type Step struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Band marks a threshold on a gauge.
type Band struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// GaugeValue is a single ratio dial.
type GaugeValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Bands []Band  `json:"bands"`
}

// Metadata summarizes the primary dataset.
type Metadata struct {
	Total       *float64   `json:"total,omitempty"`
	Average     *float64   `json:"average,omitempty"`
	Latest      *float64   `json:"latest,omitempty"`
	GrowthRates []*float64 `json:"growth_rates,omitempty"`
	Trend       calc.Trend `json:"trend,omitempty"`
}

// Series is a named, typed chart package.
type Series struct {
	Name     string       `json:"name"`
	Title    string       `json:"title"`
	Type     Type         `json:"type"`
	Labels   []string     `json:"labels"`
	Datasets []Dataset    `json:"datasets,omitempty"`
	Steps    []Step       `json:"steps,omitempty"`
	Gauges   []GaugeValue `json:"gauges,omitempty"`
	Metadata Metadata     `json:"metadata"`
	Empty    bool         `json:"empty"`
}

// Build produces every chart for the series. bundle supplies trend tags,
// ratios and the capex assumption; with a nil bundle the ratio gauges are
// empty and no trend tags are set.
func Build(series models.PeriodSeries, bundle *analysis.Bundle) map[string]Series {
	return map[string]Series{
		RevenueTrend:      revenueTrend(series, bundle),
		MarginAnalysis:    marginAnalysis(series, bundle),
		CashFlowTrend:     cashFlowTrend(series, bundle),
		KeyMetrics:        keyMetrics(series, bundle),
		CashFlowWaterfall: cashFlowWaterfall(series, bundle),
		RatioGauges:       ratioGauges(bundle),
	}
}

// Comparison is a bar chart of one field across all periods.
func Comparison(series models.PeriodSeries, field models.Field) Series {
	title := humanize(string(field))
	data := series.Column(field)
	s := Series{
		Name:     "comparison_" + string(field),
		Title:    title + " Comparison",
		Type:     Bar,
		Labels:   series.Labels(),
		Datasets: []Dataset{{Label: title, Data: data}},
		Metadata: summarize(data),
	}
	s.Empty = !anyPresent(data)
	return s
}

func revenueTrend(series models.PeriodSeries, bundle *analysis.Bundle) Series {
	data := series.Column(models.Revenue)
	s := Series{
		Name:     RevenueTrend,
		Title:    "Revenue Trend",
		Type:     Line,
		Labels:   series.Labels(),
		Datasets: []Dataset{{Label: "Revenue", Data: data}},
		Metadata: summarize(data),
		Empty:    !anyPresent(data),
	}
	s.Metadata.GrowthRates = growthRates(data)
	s.Metadata.Trend = trendOf(bundle, string(models.Revenue))
	return s
}

func marginAnalysis(series models.PeriodSeries, bundle *analysis.Bundle) Series {
	s := Series{
		Name:   MarginAnalysis,
		Title:  "Margin Analysis",
		Type:   Line,
		Labels: series.Labels(),
	}
	history := analysis.PeriodMargins(series)
	for _, name := range []string{analysis.GrossMargin, analysis.OperatingMargin, analysis.NetMargin} {
		data := make([]*float64, len(history[name]))
		for i, m := range history[name] {
			if v, ok := m.Rounded(2).Get(); ok {
				data[i] = &v
			}
		}
		if anyPresent(data) {
			s.Datasets = append(s.Datasets, Dataset{Label: humanize(name), Data: data})
		}
	}
	if len(s.Datasets) == 0 {
		s.Empty = true
		return s
	}
	s.Metadata = summarize(s.Datasets[len(s.Datasets)-1].Data)
	s.Metadata.Trend = trendOf(bundle, analysis.NetMargin)
	return s
}

func cashFlowTrend(series models.PeriodSeries, bundle *analysis.Bundle) Series {
	s := Series{
		Name:   CashFlowTrend,
		Title:  "Cash Flow Trend",
		Type:   Line,
		Labels: series.Labels(),
	}
	if ocf := series.Column(models.CashFromOperations); anyPresent(ocf) {
		s.Datasets = append(s.Datasets, Dataset{Label: "Operating Cash Flow", Data: ocf})
	}
	if fcf := analysis.FreeCashFlowSeries(series, capexAssumedZero(bundle)); anyPresent(fcf) {
		s.Datasets = append(s.Datasets, Dataset{Label: "Free Cash Flow", Data: fcf})
		s.Metadata = summarize(fcf)
		s.Metadata.Trend = trendOf(bundle, analysis.FreeCashFlow)
	}
	s.Empty = len(s.Datasets) == 0
	return s
}

func keyMetrics(series models.PeriodSeries, bundle *analysis.Bundle) Series {
	s := Series{Name: KeyMetrics, Title: "Key Financial Metrics", Type: Bar}
	if series.Len() == 0 {
		s.Empty = true
		return s
	}
	latest := series.Latest()
	var data []*float64
	add := func(label string, v float64) {
		s.Labels = append(s.Labels, label)
		data = append(data, &v)
	}
	for _, f := range []struct {
		label string
		field models.Field
	}{
		{"Revenue", models.Revenue},
		{"Net Income", models.NetIncome},
		{"Operating Income", models.OperatingIncome},
		{"Operating Cash Flow", models.CashFromOperations},
	} {
		if v, ok := latest.Value(f.field); ok {
			add(f.label, v)
		}
	}
	if v, ok := bundle.Value(analysis.CashFlow, analysis.FreeCashFlow); ok {
		add("Free Cash Flow", v)
	}
	if len(data) == 0 {
		s.Empty = true
		return s
	}
	s.Datasets = []Dataset{{Label: latest.Label, Data: data}}
	return s
}

// cashFlowWaterfall walks the latest period from operating cash flow through
// capex. Only components that are present become steps, and the total is set
// only when the walk reaches free cash flow.
func cashFlowWaterfall(series models.PeriodSeries, bundle *analysis.Bundle) Series {
	s := Series{Name: CashFlowWaterfall, Title: "Cash Flow Breakdown", Type: Waterfall}
	if series.Len() == 0 {
		s.Empty = true
		return s
	}
	latest := series.Latest()
	ocf, ok := latest.Value(models.CashFromOperations)
	if !ok {
		s.Empty = true
		return s
	}

	var cumulative float64
	step := func(label string, v float64) {
		s.Steps = append(s.Steps, Step{Label: label, Value: v, Start: cumulative, End: cumulative + v})
		s.Labels = append(s.Labels, label)
		cumulative += v
	}
	step("Operating Activities", ocf)
	if capex, ok := latest.Value(models.CapitalExpenditure); ok {
		step("Capital Expenditures", -math.Abs(capex))
	} else if capexAssumedZero(bundle) {
		step("Capital Expenditures", 0)
	} else {
		// without capex the walk stops at OCF, which is not free cash flow
		return s
	}

	total := cumulative
	s.Metadata.Total = &total
	s.Metadata.Latest = &total
	return s
}

var gaugeSpecs = []struct {
	metric string
	name   string
	min    float64
	max    float64
	bands  []Band
}{
	{analysis.CurrentRatio, "Current Ratio", 0, 3, []Band{{1.0, "Low"}, {1.5, "Adequate"}, {2.0, "Good"}}},
	{analysis.QuickRatio, "Quick Ratio", 0, 3, []Band{{0.5, "Low"}, {1.0, "Adequate"}, {1.5, "Good"}}},
	{analysis.DebtToEquity, "Debt to Equity", 0, 2, []Band{{0.5, "Low"}, {1.0, "Moderate"}, {1.5, "High"}}},
}

func ratioGauges(bundle *analysis.Bundle) Series {
	s := Series{Name: RatioGauges, Title: "Financial Health Indicators", Type: Gauge}
	for _, g := range gaugeSpecs {
		v, ok := bundle.Value(analysis.FinancialRatios, g.metric)
		if !ok {
			continue
		}
		s.Gauges = append(s.Gauges, GaugeValue{
			Name:  g.name,
			Value: math.Round(v*100) / 100,
			Min:   g.min,
			Max:   g.max,
			Bands: append([]Band(nil), g.bands...),
		})
		s.Labels = append(s.Labels, g.name)
	}
	s.Empty = len(s.Gauges) == 0
	return s
}

func summarize(data []*float64) Metadata {
	var present []float64
	for _, v := range data {
		if v != nil {
			present = append(present, *v)
		}
	}
	if len(present) == 0 {
		return Metadata{}
	}
	var total float64
	for _, v := range present {
		total += v
	}
	avg := calc.Mean(present)
	latest := present[len(present)-1]
	return Metadata{Total: &total, Average: &avg, Latest: &latest}
}

// growthRates gives one entry per transition; nil where either end is missing
// or the earlier value is zero.
func growthRates(data []*float64) []*float64 {
	if len(data) < 2 {
		return nil
	}
	out := make([]*float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		if data[i] == nil || data[i-1] == nil {
			continue
		}
		if v, ok := calc.GrowthRate(*data[i], *data[i-1]).Rounded(2).Get(); ok {
			out[i-1] = &v
		}
	}
	return out
}

func anyPresent(data []*float64) bool {
	for _, v := range data {
		if v != nil {
			return true
		}
	}
	return false
}

func trendOf(bundle *analysis.Bundle, key string) calc.Trend {
	if bundle == nil {
		return ""
	}
	return bundle.Trends[key]
}

func capexAssumedZero(bundle *analysis.Bundle) bool {
	if bundle == nil {
		return false
	}
	for _, a := range bundle.Assumptions {
		if a == analysis.AssumptionZeroCapex {
			return true
		}
	}
	return false
}

// humanize turns "gross_margin" into "Gross Margin". Casers hold state, so
// each call gets its own.
func humanize(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
