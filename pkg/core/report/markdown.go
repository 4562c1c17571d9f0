// Package report renders a finished analysis for people: Markdown, HTML
// (via goldmark) and PDF (via fpdf). JSON stays the machine format.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/calc"
	"finstory/pkg/core/pipeline"
)

type unit int

const (
	amount unit = iota
	percent
	ratio
	count
)

type metricRow struct {
	Label    string
	Category analysis.Category
	Name     string
	Unit     unit
}

// keyMetrics is the metrics table, in display order.
var keyMetrics = []metricRow{
	{"Revenue", analysis.RevenueMetrics, analysis.CurrentValue, amount},
	{"Revenue growth", analysis.RevenueMetrics, analysis.GrowthRate, percent},
	{"Revenue CAGR", analysis.RevenueMetrics, analysis.CAGR, percent},
	{"Net income", analysis.ProfitMetrics, analysis.CurrentValue, amount},
	{"Gross margin", analysis.Margins, analysis.GrossMargin, percent},
	{"Operating margin", analysis.Margins, analysis.OperatingMargin, percent},
	{"Net margin", analysis.Margins, analysis.NetMargin, percent},
	{"Operating cash flow", analysis.CashFlow, analysis.OperatingCashFlow, amount},
	{"Free cash flow", analysis.CashFlow, analysis.FreeCashFlow, amount},
	{"Cash runway (periods)", analysis.CashFlow, analysis.RunwayPeriods, count},
	{"Current ratio", analysis.FinancialRatios, analysis.CurrentRatio, ratio},
	{"Quick ratio", analysis.FinancialRatios, analysis.QuickRatio, ratio},
	{"Debt to equity", analysis.FinancialRatios, analysis.DebtToEquity, ratio},
	{"Return on equity", analysis.FinancialRatios, analysis.ReturnOnEquity, percent},
}

type cell struct {
	Label string
	Value string
}

type riskLine struct {
	Title, Severity, Category, Description, Impact string
}

type view struct {
	Title           string
	Status          string
	Failed          bool
	Reason          string
	Note            string
	Summary         string
	Takeaways       []string
	Strengths       []string
	Concerns        []string
	Metrics         []cell
	Trends          []cell
	Risks           []riskLine
	Recommendations []string
	Assumptions     []string
}

var markdownTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).Parse(`# {{.Title}}

_Status: {{.Status}}_
{{- if .Failed}}

Analysis could not be completed: {{.Reason}}
{{- else}}
{{- with .Note}}

> {{.}}
{{- end}}

## Summary

{{.Summary}}
{{- with .Takeaways}}

## Key Takeaways
{{range .}}
- {{.}}
{{- end}}
{{- end}}
{{- with .Metrics}}

## Key Metrics

| Metric | Value |
|---|---|
{{- range .}}
| {{.Label}} | {{.Value}} |
{{- end}}
{{- end}}
{{- with .Trends}}

## Trends
{{range .}}
- {{.Label}}: {{.Value}}
{{- end}}
{{- end}}
{{- with .Strengths}}

## Strengths
{{range .}}
- {{.}}
{{- end}}
{{- end}}
{{- with .Concerns}}

## Concerns
{{range .}}
- {{.}}
{{- end}}
{{- end}}

## Risks
{{range .Risks}}
- **{{.Title}}** ({{.Severity}}, {{.Category}}): {{.Description}}{{with .Impact}} {{.}}{{end}}
{{- else}}
No material risks identified.
{{- end}}
{{- with .Recommendations}}

## Recommendations
{{range $i, $r := .}}
{{inc $i}}. {{$r}}
{{- end}}
{{- end}}
{{- with .Assumptions}}

---

Assumptions: {{join . ", "}}
{{- end}}
{{- end}}
`))

// RenderMarkdown renders the result as a Markdown document.
func RenderMarkdown(res *pipeline.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("no result to render")
	}
	var b strings.Builder
	if err := markdownTmpl.Execute(&b, newView(res)); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return b.String(), nil
}

func newView(res *pipeline.Result) view {
	v := view{
		Title:  "Financial Narrative",
		Status: string(res.Status),
		Failed: res.Status == pipeline.StatusError,
		Reason: res.Reason,
	}
	if res.Persona != "" {
		v.Title = fmt.Sprintf("%s Financial Narrative", res.Persona)
	}
	if res.Metrics != nil && res.Metrics.LatestLabel != "" {
		v.Title += " - " + res.Metrics.LatestLabel
	}
	if v.Failed {
		return v
	}

	if res.Degraded {
		v.Note = "Narrative generated from the built-in template"
		if res.DegradedReason != "" {
			v.Note += " (" + res.DegradedReason + ")"
		}
		v.Note += "."
	}
	if res.Insights != nil {
		v.Summary = res.Insights.Summary
		v.Takeaways = res.Insights.KeyTakeaways
		v.Strengths = res.Insights.Strengths
		v.Concerns = res.Insights.Concerns
	}
	if res.Metrics != nil {
		for _, row := range keyMetrics {
			m := res.Metrics.Metric(row.Category, row.Name)
			if !m.Available && m.Reason == "not computed" {
				continue
			}
			v.Metrics = append(v.Metrics, cell{Label: row.Label, Value: formatMetric(m, row.Unit)})
		}
		v.Assumptions = res.Metrics.Assumptions
	}

	names := make([]string, 0, len(res.Trends))
	for name := range res.Trends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.Trends = append(v.Trends, cell{Label: strings.ReplaceAll(name, "_", " "), Value: string(res.Trends[name])})
	}

	for _, f := range res.Risks {
		v.Risks = append(v.Risks, riskLine{
			Title:       f.Title,
			Severity:    string(f.Severity),
			Category:    f.Category,
			Description: f.Description,
			Impact:      f.Impact,
		})
	}
	v.Recommendations = res.Recommendations
	return v
}

func formatMetric(m calc.Metric, u unit) string {
	val, ok := m.Get()
	if !ok {
		if m.Reason == "" {
			return "n/a"
		}
		return "n/a (" + m.Reason + ")"
	}
	switch u {
	case percent:
		return fmt.Sprintf("%.2f%%", val)
	case ratio:
		return fmt.Sprintf("%.2fx", val)
	case count:
		return fmt.Sprintf("%.1f", val)
	default:
		return formatAmount(val)
	}
}

func formatAmount(v float64) string {
	if math.Abs(v) >= 1e6 {
		return humanize.CommafWithDigits(math.Round(v), 0)
	}
	return humanize.CommafWithDigits(v, 2)
}
