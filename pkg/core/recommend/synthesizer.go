// Package recommend merges risk findings and persona priorities into one
// ranked, deduplicated action list.
//
// Ranking:
//  1. Severity of the originating finding (generic items rank below low).
//  2. Persona weight of the item's category.
//  3. Magnitude of the metric behind the item.
//
// Items sharing a semantic key (category + action) collapse to the first,
// highest-ranked one.
package recommend

import (
	"fmt"
	"math"
	"sort"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

const (
	// MinItems is the floor generic recommendations fill up to.
	MinItems = 5
	// MaxItems caps the final list.
	MaxItems = 7
)

// Action identifiers. Generic items reuse the risk actions where they mean
// the same thing so the two sources dedupe against each other.
const (
	ActionPreserveCash   = "preserve-cash"
	ActionCutCosts       = "cut-costs"
	ActionReviveGrowth   = "revive-growth"
	ActionDelever        = "delever"
	ActionWorkingCapital = "working-capital"
	ActionProtectMargin  = "protect-margin"
	ActionScale          = "scale-infrastructure"
	ActionReinvest       = "reinvest-growth"
	ActionCashForecast   = "cash-forecast"
	ActionCostBenchmark  = "cost-benchmark"
	ActionCapitalPlan    = "capital-allocation"
	ActionTrackKPIs      = "track-kpis"
)

// Item is one ranked recommendation before it is flattened to text.
type Item struct {
	Category string
	Action   string
	Severity risk.Severity
	Weight   float64
	Impact   float64
	Text     string
}

// Key is the semantic identity used for deduplication.
func (i Item) Key() string {
	return i.Category + ":" + i.Action
}

// phrasing maps a risk category and persona to the response it calls for.
var phrasing = map[string]struct {
	action  string
	persona map[models.Persona]string
}{
	risk.CategoryLiquidity: {ActionPreserveCash, map[models.Persona]string{
		models.PersonaCFO:      "Implement immediate cash preservation measures and explore short-term financing options",
		models.PersonaInvestor: "Monitor cash burn against runway and price in the dilution risk of new financing",
		models.PersonaBoard:    "Review the capital structure and consider strategic financing options",
	}},
	risk.CategoryGrowth: {ActionReviveGrowth, map[models.Persona]string{
		models.PersonaCFO:      "Re-forecast revenue and align the cost base with lower demand",
		models.PersonaInvestor: "Assess market position and evaluate strategic pivots or new market opportunities",
		models.PersonaBoard:    "Commission a review of go-to-market strategy and competitive position",
	}},
	risk.CategoryProfitability: {ActionCutCosts, map[models.Persona]string{
		models.PersonaCFO:      "Conduct a detailed cost analysis and identify efficiency opportunities",
		models.PersonaInvestor: "Evaluate pricing power and how durable current margins are",
		models.PersonaBoard:    "Set margin targets and hold management accountable for cost discipline",
	}},
	risk.CategoryLeverage: {ActionDelever, map[models.Persona]string{
		models.PersonaCFO:      "Prioritize debt reduction and renegotiate covenants where possible",
		models.PersonaInvestor: "Weigh refinancing risk and interest burden in the valuation",
		models.PersonaBoard:    "Approve a deleveraging plan and revisit dividend and buyback policy",
	}},
}

var urgency = map[models.Persona]string{
	models.PersonaCFO:      "URGENT",
	models.PersonaInvestor: "Key Risk",
	models.PersonaBoard:    "Strategic Action Required",
}

// Synthesizer holds the persona definitions used for ranking.
type Synthesizer struct {
	profiles map[models.Persona]models.PersonaProfile
}

// NewSynthesizer uses the built-in personas when profiles is nil.
func NewSynthesizer(profiles map[models.Persona]models.PersonaProfile) *Synthesizer {
	if profiles == nil {
		profiles = models.DefaultPersonaProfiles()
	}
	return &Synthesizer{profiles: profiles}
}

// Synthesize ranks recommendations with the built-in personas.
func Synthesize(bundle *analysis.Bundle, findings []risk.Finding, persona models.Persona) []string {
	return NewSynthesizer(nil).Synthesize(bundle, findings, persona)
}

// Synthesize returns at most MaxItems recommendations, highest priority first.
// findings may be nil, in which case only persona priorities drive the list.
func (s *Synthesizer) Synthesize(bundle *analysis.Bundle, findings []risk.Finding, persona models.Persona) []string {
	items := s.Items(bundle, findings, persona)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

// Items is Synthesize without the flattening to text.
func (s *Synthesizer) Items(bundle *analysis.Bundle, findings []risk.Finding, persona models.Persona) []Item {
	profile := s.profiles[persona]
	seen := make(map[string]bool)
	var items []Item
	add := func(it Item) {
		if seen[it.Key()] {
			return
		}
		seen[it.Key()] = true
		it.Weight = profile.Weight(it.Category)
		items = append(items, it)
	}

	for _, f := range findings {
		if f.Severity != risk.SeverityHigh && f.Severity != risk.SeverityMedium {
			continue
		}
		if it, ok := fromFinding(f, persona); ok {
			add(it)
		}
	}

	if len(items) < MinItems {
		for _, it := range genericItems(bundle, profile) {
			if len(items) >= MinItems {
				break
			}
			add(it)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return math.Abs(a.Impact) > math.Abs(b.Impact)
	})
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	return items
}

func fromFinding(f risk.Finding, persona models.Persona) (Item, bool) {
	p, ok := phrasing[f.Category]
	if !ok {
		return Item{}, false
	}
	text, ok := p.persona[persona]
	if !ok {
		text = p.persona[models.PersonaCFO]
	}
	if f.Severity == risk.SeverityHigh {
		text = fmt.Sprintf("%s: %s - %s", urgencyLabel(persona), f.Title, text)
	} else {
		text = fmt.Sprintf("%s - %s", f.Title, text)
	}
	return Item{
		Category: f.Category,
		Action:   p.action,
		Severity: f.Severity,
		Impact:   f.MetricValue,
		Text:     text,
	}, true
}

func urgencyLabel(p models.Persona) string {
	if u, ok := urgency[p]; ok {
		return u
	}
	return urgency[models.PersonaCFO]
}

// genericItems proposes persona-priority actions conditioned on the metrics,
// ordered by the persona's category weight. Declaration order breaks ties.
func genericItems(b *analysis.Bundle, profile models.PersonaProfile) []Item {
	var items []Item
	add := func(category, action string, impact float64, text string) {
		items = append(items, Item{Category: category, Action: action, Impact: impact, Text: text})
	}

	// Liquidity
	if fcf, ok := b.Value(analysis.CashFlow, analysis.FreeCashFlow); ok && fcf < 0 {
		add(risk.CategoryLiquidity, ActionPreserveCash, fcf,
			"Cash Flow Management: Negative free cash flow - review capital expenditures and optimize working capital")
	}
	if ccc, ok := b.Value(analysis.CashFlow, analysis.CashConversionCycle); ok && ccc > 60 {
		add(risk.CategoryLiquidity, ActionWorkingCapital, ccc,
			fmt.Sprintf("Working Capital: Shorten the %.0f-day cash conversion cycle by tightening collections and inventory", ccc))
	}
	add(risk.CategoryLiquidity, ActionCashForecast, 0,
		"Liquidity Planning: Maintain a rolling cash forecast and track liquidity against plan each period")

	// Profitability
	if nm, ok := b.Value(analysis.Margins, analysis.NetMargin); ok {
		if nm < 10 {
			add(risk.CategoryProfitability, ActionCutCosts, nm,
				fmt.Sprintf("Margin Improvement: Net margin at %.2f%% - conduct a detailed cost analysis and identify efficiency opportunities", nm))
		} else {
			add(risk.CategoryProfitability, ActionProtectMargin, nm,
				fmt.Sprintf("Margin Protection: Defend the %.2f%% net margin by monitoring input costs and pricing", nm))
		}
	}
	add(risk.CategoryProfitability, ActionCostBenchmark, 0,
		"Cost Benchmarking: Compare the cost structure against peers to find efficiency opportunities")

	// Growth
	if g, ok := b.Value(analysis.RevenueMetrics, analysis.GrowthRate); ok {
		switch {
		case g < 5:
			add(risk.CategoryGrowth, ActionReviveGrowth, g,
				fmt.Sprintf("Growth Strategy: Revenue growth of %.2f%% is below expectations - explore new revenue streams and markets", g))
		case g > 30:
			add(risk.CategoryGrowth, ActionScale, g,
				"Scale Infrastructure: High growth rate - ensure operations can support continued rapid expansion")
		default:
			add(risk.CategoryGrowth, ActionReinvest, g,
				fmt.Sprintf("Growth Investment: Sustain %.2f%% revenue growth by reinvesting in the highest-return channels", g))
		}
	}
	add(risk.CategoryGrowth, ActionTrackKPIs, 0,
		"Performance Tracking: Review revenue and margin trends against targets every period")

	// Leverage
	if de, ok := b.Value(analysis.FinancialRatios, analysis.DebtToEquity); ok && de > 1 {
		add(risk.CategoryLeverage, ActionDelever, de,
			fmt.Sprintf("Capital Structure: Debt-to-equity of %.2f - plan for gradual deleveraging", de))
	}
	add(risk.CategoryLeverage, ActionCapitalPlan, 0,
		"Capital Allocation: Rebalance priorities between reinvestment, debt service and shareholder returns")

	sort.SliceStable(items, func(i, j int) bool {
		return profile.Weight(items[i].Category) > profile.Weight(items[j].Category)
	})
	return items
}
