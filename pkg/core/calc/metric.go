// Package calc provides deterministic financial formulas for the metrics engine.
// Every formula returns a Metric so that missing inputs stay visible as
// "unavailable" instead of collapsing to zero.
package calc

import (
	"encoding/json"
	"math"
)

// Metric is a single computed value or an explicit unavailability marker.
type Metric struct {
	Value     float64 `json:"value,omitempty"`
	Available bool    `json:"available"`
	Reason    string  `json:"reason,omitempty"`
}

// Of returns an available metric. Non-finite values are turned into an
// unavailable metric so NaN and Inf never leave this package.
func Of(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unavailable("result is not a finite number")
	}
	return Metric{Value: v, Available: true}
}

// Unavailable returns a metric carrying only the reason it could not be computed.
func Unavailable(reason string) Metric {
	return Metric{Reason: reason}
}

// Get returns the value and whether it is available.
func (m Metric) Get() (float64, bool) {
	return m.Value, m.Available
}

// Rounded returns the metric with its value rounded to the given decimals.
func (m Metric) Rounded(decimals int) Metric {
	if !m.Available {
		return m
	}
	p := math.Pow(10, float64(decimals))
	return Metric{Value: math.Round(m.Value*p) / p, Available: true}
}

// MarshalJSON always emits the value for available metrics, including zero.
func (m Metric) MarshalJSON() ([]byte, error) {
	if m.Available {
		return json.Marshal(struct {
			Value     float64 `json:"value"`
			Available bool    `json:"available"`
		}{m.Value, true})
	}
	return json.Marshal(struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason,omitempty"`
	}{false, m.Reason})
}

// Missing builds the standard reason for an absent input field.
func Missing(field string) Metric {
	return Unavailable("missing " + field)
}
