package calc

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Trend is the qualitative direction of a metric.
type Trend string

const (
	TrendUpward   Trend = "upward"
	TrendDownward Trend = "downward"
	TrendStable   Trend = "stable"
)

// Mean is the arithmetic mean, zero for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// ClassifyTrend compares the last value with the mean of up to `window`
// preceding values. The returned metric is the delta as a percent of the
// average magnitude. threshold is a fraction (0.02 means 2%).
//
// With a zero average the direction follows the sign of the latest value and
// the delta metric is unavailable.
func ClassifyTrend(values []float64, window int, threshold float64) (Trend, Metric, bool) {
	if len(values) < 2 {
		return "", Unavailable("fewer than two values"), false
	}
	if window <= 0 {
		window = len(values) - 1
	}

	latest := values[len(values)-1]
	start := len(values) - 1 - window
	if start < 0 {
		start = 0
	}
	avg := Mean(values[start : len(values)-1])
	delta := latest - avg

	if avg == 0 {
		switch {
		case latest > 0:
			return TrendUpward, Unavailable("trailing average is zero"), true
		case latest < 0:
			return TrendDownward, Unavailable("trailing average is zero"), true
		default:
			return TrendStable, Unavailable("trailing average is zero"), true
		}
	}

	band := threshold * math.Abs(avg)
	pct := Of(delta / math.Abs(avg) * 100)
	switch {
	case delta > band:
		return TrendUpward, pct, true
	case delta < -band:
		return TrendDownward, pct, true
	default:
		return TrendStable, pct, true
	}
}
