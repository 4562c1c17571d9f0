package analysis

import (
	"finstory/pkg/core/calc"
	"finstory/pkg/models"
)

// Options tune the metrics engine.
type Options struct {
	TrendThreshold  float64 // fraction of the trailing average, e.g. 0.02
	TrendWindow     int     // preceding periods in the trailing average
	AssumeZeroCapex bool    // treat missing capex as "no investing activity"
	PeriodDays      float64 // days per period for the cash conversion cycle
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		TrendThreshold: 0.02,
		TrendWindow:    3,
		PeriodDays:     365,
	}
}

// trackedTrends are the series classified into upward/downward/stable.
var trackedTrends = []string{
	string(models.Revenue),
	string(models.NetIncome),
	string(models.OperatingIncome),
	string(models.CashFromOperations),
	FreeCashFlow,
	GrossMargin,
	NetMargin,
}

// Engine computes a Bundle from a PeriodSeries. It holds no per-run state.
type Engine struct {
	opts Options
}

// NewEngine creates a new engine with the given options.
func NewEngine(opts Options) *Engine {
	if opts.PeriodDays <= 0 {
		opts.PeriodDays = 365
	}
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = 3
	}
	return &Engine{opts: opts}
}

// Compute runs every metric family over the series. It only fails when the
// series is empty or the latest period has no revenue; any other missing field
// just marks the dependent metrics unavailable.
func (e *Engine) Compute(series models.PeriodSeries) (*Bundle, error) {
	if series.Len() == 0 {
		return nil, &InsufficientDataError{Reason: "series has no periods"}
	}
	latest := series.Latest()
	if _, ok := latest.Value(models.Revenue); !ok {
		return nil, &InsufficientDataError{Reason: "revenue missing in latest period " + latest.Label}
	}

	b := &Bundle{
		Categories:  make(map[Category]map[string]calc.Metric, len(Categories)),
		Trends:      make(map[string]calc.Trend),
		Periods:     series.Len(),
		LatestLabel: latest.Label,
	}

	b.Categories[RevenueMetrics] = growthMetrics(series, models.Revenue)
	if len(series.Present(models.NetIncome)) > 0 {
		b.Categories[ProfitMetrics] = growthMetrics(series, models.NetIncome)
	} else {
		b.Categories[ProfitMetrics] = map[string]calc.Metric{CurrentValue: calc.Missing(string(models.NetIncome))}
	}

	marginHistory := marginSeries(series)
	b.Categories[Margins] = marginMetrics(marginHistory)

	fcf, assumed := freeCashFlowSeries(series, e.opts.AssumeZeroCapex)
	if assumed {
		b.Assumptions = append(b.Assumptions, AssumptionZeroCapex)
	}
	b.Categories[CashFlow] = cashFlowMetrics(series, fcf, e.opts.PeriodDays)
	b.Categories[FinancialRatios] = ratioMetrics(latest)

	history := map[string][]float64{
		string(models.Revenue):            series.Present(models.Revenue),
		string(models.NetIncome):          series.Present(models.NetIncome),
		string(models.OperatingIncome):    series.Present(models.OperatingIncome),
		string(models.CashFromOperations): series.Present(models.CashFromOperations),
		FreeCashFlow:                      presentValues(fcf),
		GrossMargin:                       availableValues(marginHistory[GrossMargin]),
		NetMargin:                         availableValues(marginHistory[NetMargin]),
	}
	trends := make(map[string]calc.Metric)
	for _, name := range trackedTrends {
		tag, delta, ok := calc.ClassifyTrend(history[name], e.opts.TrendWindow, e.opts.TrendThreshold)
		if !ok {
			trends[name] = delta
			continue
		}
		b.Trends[name] = tag
		trends[name] = delta.Rounded(2)
	}
	b.Categories[Trends] = trends

	return b, nil
}

// growthMetrics covers current/previous values, period-over-period growth and
// CAGR for one field.
func growthMetrics(series models.PeriodSeries, f models.Field) map[string]calc.Metric {
	out := make(map[string]calc.Metric)
	n := series.Len()

	cur, ok := series.At(n - 1).Value(f)
	if !ok {
		out[CurrentValue] = calc.Missing(string(f))
		out[GrowthRate] = calc.Missing(string(f))
		out[GrowthAmount] = calc.Missing(string(f))
		out[CAGR] = calc.Missing(string(f))
		return out
	}
	out[CurrentValue] = calc.Of(cur)

	if n < 2 {
		out[PreviousValue] = calc.Unavailable("fewer than two periods")
		out[GrowthRate] = calc.Unavailable("fewer than two periods")
		out[GrowthAmount] = calc.Unavailable("fewer than two periods")
		out[CAGR] = calc.Unavailable("fewer than two periods")
		return out
	}

	prev, ok := series.At(n - 2).Value(f)
	if !ok {
		out[PreviousValue] = calc.Missing(string(f) + " in prior period")
		out[GrowthRate] = calc.Missing(string(f) + " in prior period")
		out[GrowthAmount] = calc.Missing(string(f) + " in prior period")
	} else {
		out[PreviousValue] = calc.Of(prev)
		out[GrowthRate] = calc.GrowthRate(cur, prev).Rounded(2)
		if out[GrowthRate].Available {
			out[GrowthAmount] = calc.Of(cur - prev)
		} else {
			out[GrowthAmount] = out[GrowthRate]
		}
	}

	// CAGR spans the first and last periods that carry the field.
	first := -1
	for i := 0; i < n; i++ {
		if series.At(i).Has(f) {
			first = i
			break
		}
	}
	if first < 0 || first == n-1 {
		out[CAGR] = calc.Unavailable("fewer than two periods")
	} else {
		begin, _ := series.At(first).Value(f)
		out[CAGR] = calc.CAGR(cur, begin, n-1-first).Rounded(2)
	}
	return out
}

// marginSeries computes the three margins for every period.
func marginSeries(series models.PeriodSeries) map[string][]calc.Metric {
	out := map[string][]calc.Metric{
		GrossMargin:     make([]calc.Metric, series.Len()),
		OperatingMargin: make([]calc.Metric, series.Len()),
		NetMargin:       make([]calc.Metric, series.Len()),
	}
	for i := 0; i < series.Len(); i++ {
		p := series.At(i)
		out[GrossMargin][i] = periodMargin(p, models.COGS, true)
		out[OperatingMargin][i] = periodMargin(p, models.OperatingIncome, false)
		out[NetMargin][i] = periodMargin(p, models.NetIncome, false)
	}
	return out
}

// PeriodMargins exposes the per-period margin history for chart building.
func PeriodMargins(series models.PeriodSeries) map[string][]calc.Metric {
	return marginSeries(series)
}

func periodMargin(p models.Period, numerator models.Field, gross bool) calc.Metric {
	rev, ok := p.Value(models.Revenue)
	if !ok {
		return calc.Missing(string(models.Revenue))
	}
	v, ok := p.Value(numerator)
	if !ok {
		return calc.Missing(string(numerator))
	}
	if gross {
		return calc.GrossMargin(rev, v)
	}
	return calc.Margin(v, rev)
}

func marginMetrics(history map[string][]calc.Metric) map[string]calc.Metric {
	out := make(map[string]calc.Metric)
	deltas := map[string]string{
		GrossMargin:     GrossMarginDelta,
		OperatingMargin: OperatingMarginDelta,
		NetMargin:       NetMarginDelta,
	}
	for name, values := range history {
		n := len(values)
		out[name] = values[n-1].Rounded(2)
		if n < 2 {
			out[deltas[name]] = calc.Unavailable("fewer than two periods")
			continue
		}
		out[deltas[name]] = calc.Delta(values[n-1], values[n-2]).Rounded(2)
	}
	return out
}

// freeCashFlowSeries returns FCF per period (nil where it cannot be computed)
// and whether the zero-capex assumption was applied anywhere.
func freeCashFlowSeries(series models.PeriodSeries, assumeZeroCapex bool) ([]*float64, bool) {
	out := make([]*float64, series.Len())
	assumed := false
	for i := 0; i < series.Len(); i++ {
		p := series.At(i)
		ocf, ok := p.Value(models.CashFromOperations)
		if !ok {
			continue
		}
		capex, ok := p.Value(models.CapitalExpenditure)
		if !ok {
			if !assumeZeroCapex {
				continue
			}
			capex = 0
			assumed = true
		}
		v := calc.FreeCashFlow(ocf, capex)
		out[i] = &v
	}
	return out, assumed
}

// FreeCashFlowSeries exposes per-period FCF for chart building.
func FreeCashFlowSeries(series models.PeriodSeries, assumeZeroCapex bool) []*float64 {
	fcf, _ := freeCashFlowSeries(series, assumeZeroCapex)
	return fcf
}

func cashFlowMetrics(series models.PeriodSeries, fcf []*float64, periodDays float64) map[string]calc.Metric {
	out := make(map[string]calc.Metric)
	latest := series.Latest()
	n := series.Len()

	if ocf, ok := latest.Value(models.CashFromOperations); ok {
		out[OperatingCashFlow] = calc.Of(ocf)
	} else {
		out[OperatingCashFlow] = calc.Missing(string(models.CashFromOperations))
	}

	ocfHistory := series.Present(models.CashFromOperations)
	if len(ocfHistory) >= 3 {
		out[AvgOperatingCashFlow] = calc.Of(calc.Mean(ocfHistory[len(ocfHistory)-3:])).Rounded(2)
	} else {
		out[AvgOperatingCashFlow] = calc.Unavailable("fewer than three periods of operating cash flow")
	}

	if capex, ok := latest.Value(models.CapitalExpenditure); ok {
		out[CapitalExpenditures] = calc.Of(capex)
	} else {
		out[CapitalExpenditures] = calc.Missing(string(models.CapitalExpenditure))
	}

	latestFCF := fcf[n-1]
	if latestFCF != nil {
		out[FreeCashFlow] = calc.Of(*latestFCF)
	} else if !latest.Has(models.CashFromOperations) {
		out[FreeCashFlow] = calc.Missing(string(models.CashFromOperations))
	} else {
		out[FreeCashFlow] = calc.Missing(string(models.CapitalExpenditure))
	}

	if latestFCF != nil {
		streak := 0
		for i := n - 1; i >= 0 && fcf[i] != nil && *fcf[i] < 0; i-- {
			streak++
		}
		out[NegativeFCFStreak] = calc.Of(float64(streak))
	} else {
		out[NegativeFCFStreak] = out[FreeCashFlow]
	}

	cash, hasCash := latest.Value(models.CashAndEquivalents)
	if hasCash {
		out[CashPosition] = calc.Of(cash)
	} else {
		out[CashPosition] = calc.Missing(string(models.CashAndEquivalents))
	}

	switch {
	case latestFCF == nil:
		out[RunwayPeriods] = out[FreeCashFlow]
	case *latestFCF >= 0:
		out[RunwayPeriods] = calc.Unavailable("runway not applicable: cash flow positive")
	case !hasCash:
		out[RunwayPeriods] = calc.Missing(string(models.CashAndEquivalents))
	default:
		// burn rate over the current run of negative periods only; older
		// episodes of negative cash flow do not describe today's burn
		var burns []float64
		for i := n - 1; i >= 0 && fcf[i] != nil && *fcf[i] < 0; i-- {
			burns = append(burns, *fcf[i])
		}
		out[RunwayPeriods] = calc.Runway(cash, calc.Mean(burns)).Rounded(1)
	}

	if latest.Has(models.AccountsReceivable, models.Inventory, models.AccountsPayable) {
		rev, _ := latest.Value(models.Revenue)
		ar, _ := latest.Value(models.AccountsReceivable)
		inv, _ := latest.Value(models.Inventory)
		ap, _ := latest.Value(models.AccountsPayable)
		out[CashConversionCycle] = calc.CashConversionCycle(ar, inv, ap, rev, periodDays).Rounded(1)
	} else {
		out[CashConversionCycle] = calc.Unavailable("missing working capital fields")
	}

	return out
}

func ratioMetrics(p models.Period) map[string]calc.Metric {
	out := make(map[string]calc.Metric)

	pair := func(name string, a, b models.Field, fn func(x, y float64) calc.Metric) {
		x, okA := p.Value(a)
		y, okB := p.Value(b)
		switch {
		case !okA:
			out[name] = calc.Missing(string(a))
		case !okB:
			out[name] = calc.Missing(string(b))
		default:
			out[name] = fn(x, y).Rounded(2)
		}
	}

	pair(CurrentRatio, models.CurrentAssets, models.CurrentLiabilities, calc.CurrentRatio)
	if p.Has(models.Inventory) {
		inv, _ := p.Value(models.Inventory)
		pair(QuickRatio, models.CurrentAssets, models.CurrentLiabilities, func(ca, cl float64) calc.Metric {
			return calc.QuickRatio(ca, inv, cl)
		})
	} else {
		out[QuickRatio] = calc.Missing(string(models.Inventory))
	}
	pair(DebtToEquity, models.TotalDebt, models.TotalEquity, calc.DebtToEquity)
	pair(ReturnOnEquity, models.NetIncome, models.TotalEquity, calc.ReturnOn)
	pair(ReturnOnAssets, models.NetIncome, models.TotalAssets, calc.ReturnOn)
	pair(AssetTurnover, models.Revenue, models.TotalAssets, calc.Ratio)

	return out
}

func presentValues(vals []*float64) []float64 {
	var out []float64
	for _, v := range vals {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func availableValues(ms []calc.Metric) []float64 {
	var out []float64
	for _, m := range ms {
		if m.Available {
			out = append(out, m.Value)
		}
	}
	return out
}
