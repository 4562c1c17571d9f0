package calc

import (
	"math"
)

// =============================================================================
// GROWTH
// =============================================================================

// GrowthRate is the period-over-period change in percent:
// (current - prior) / |prior| * 100. Undefined when prior is zero.
func GrowthRate(current, prior float64) Metric {
	if prior == 0 {
		return Unavailable("prior value is zero")
	}
	return Of((current - prior) / math.Abs(prior) * 100)
}

// CAGR is the compound growth per period in percent over `periods` elapsed
// periods: ((ending/beginning)^(1/periods) - 1) * 100.
func CAGR(endingValue, beginningValue float64, periods int) Metric {
	if periods <= 0 {
		return Unavailable("fewer than two periods")
	}
	if beginningValue <= 0 {
		return Unavailable("beginning value is not positive")
	}
	return Of((math.Pow(endingValue/beginningValue, 1.0/float64(periods)) - 1) * 100)
}

// =============================================================================
// MARGINS
// =============================================================================

// Margin returns numerator/revenue in percent. A zero revenue makes the margin
// undefined rather than zero.
func Margin(numerator, revenue float64) Metric {
	if revenue == 0 {
		return Unavailable("revenue is zero")
	}
	return Of(numerator / revenue * 100)
}

// GrossMargin is (revenue - cogs) / revenue in percent.
func GrossMargin(revenue, cogs float64) Metric {
	return Margin(revenue-cogs, revenue)
}

// Delta returns current - prior when both are available.
func Delta(current, prior Metric) Metric {
	if !current.Available {
		return current
	}
	if !prior.Available {
		return Unavailable("prior period " + orDefault(prior.Reason, "unavailable"))
	}
	return Of(current.Value - prior.Value)
}

// =============================================================================
// LIQUIDITY & SOLVENCY
// =============================================================================

// Ratio divides two operands, undefined for a zero denominator.
func Ratio(numerator, denominator float64) Metric {
	if denominator == 0 {
		return Unavailable("denominator is zero")
	}
	return Of(numerator / denominator)
}

// CurrentRatio is current assets over current liabilities.
func CurrentRatio(currentAssets, currentLiabilities float64) Metric {
	return Ratio(currentAssets, currentLiabilities)
}

// QuickRatio excludes inventory from current assets.
func QuickRatio(currentAssets, inventory, currentLiabilities float64) Metric {
	return Ratio(currentAssets-inventory, currentLiabilities)
}

// DebtToEquity is total debt over total equity.
func DebtToEquity(totalDebt, totalEquity float64) Metric {
	return Ratio(totalDebt, totalEquity)
}

// ReturnOn expresses net income over a base (equity or assets) in percent.
func ReturnOn(netIncome, base float64) Metric {
	r := Ratio(netIncome, base)
	if !r.Available {
		return r
	}
	return Of(r.Value * 100)
}

// =============================================================================
// CASH FLOW
// =============================================================================

// FreeCashFlow subtracts capital spending from operating cash flow. Capex is
// taken by magnitude, so both sign conventions for outflows give the same result.
func FreeCashFlow(operatingCashFlow, capex float64) float64 {
	return operatingCashFlow - math.Abs(capex)
}

// Runway is the number of periods cash covers the average burn.
func Runway(cash, averageBurn float64) Metric {
	if averageBurn == 0 {
		return Unavailable("no cash burn")
	}
	return Of(cash / math.Abs(averageBurn))
}

// CashConversionCycle is DSO + DIO - DPO, each measured against revenue over
// a period of the given length in days.
func CashConversionCycle(receivables, inventory, payables, revenue, periodDays float64) Metric {
	if revenue <= 0 {
		return Unavailable("revenue is not positive")
	}
	dso := receivables / revenue * periodDays
	dio := inventory / revenue * periodDays
	dpo := payables / revenue * periodDays
	return Of(dso + dio - dpo)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
