package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Field names a line item in the period vocabulary.
type Field string

const (
	Revenue            Field = "revenue"
	COGS               Field = "cost_of_goods_sold"
	OperatingIncome    Field = "operating_income"
	NetIncome          Field = "net_income"
	CashFromOperations Field = "cash_from_operations"
	CapitalExpenditure Field = "capital_expenditures"
	CashAndEquivalents Field = "cash_and_equivalents"
	CurrentAssets      Field = "current_assets"
	CurrentLiabilities Field = "current_liabilities"
	TotalAssets        Field = "total_assets"
	TotalDebt          Field = "total_debt"
	TotalEquity        Field = "total_equity"
	AccountsReceivable Field = "accounts_receivable"
	Inventory          Field = "inventory"
	AccountsPayable    Field = "accounts_payable"

	// PeriodLabel is the only non-numeric column.
	PeriodLabel Field = "period_label"
)

// NumericFields lists the numeric vocabulary in statement order.
var NumericFields = []Field{
	Revenue,
	COGS,
	OperatingIncome,
	NetIncome,
	CashFromOperations,
	CapitalExpenditure,
	CashAndEquivalents,
	CurrentAssets,
	CurrentLiabilities,
	TotalAssets,
	TotalDebt,
	TotalEquity,
	AccountsReceivable,
	Inventory,
	AccountsPayable,
}

var knownFields = func() map[Field]bool {
	m := make(map[Field]bool, len(NumericFields))
	for _, f := range NumericFields {
		m[f] = true
	}
	return m
}()

// IsNumericField reports whether f belongs to the numeric vocabulary.
func IsNumericField(f Field) bool {
	return knownFields[f]
}

// Period is one row of the series. A field that is absent has no entry in Values;
// it is never stored as zero.
type Period struct {
	Label  string            `json:"period_label"`
	Values map[Field]float64 `json:"values"`
}

// Value returns the value of f and whether it is present.
func (p Period) Value(f Field) (float64, bool) {
	v, ok := p.Values[f]
	return v, ok
}

// Has reports whether every field in fs is present.
func (p Period) Has(fs ...Field) bool {
	for _, f := range fs {
		if _, ok := p.Values[f]; !ok {
			return false
		}
	}
	return true
}

// PeriodSeries is a chronologically ordered, read-only sequence of periods.
type PeriodSeries struct {
	periods []Period
}

// NewPeriodSeries copies the given periods into a new series. Unknown fields and
// non-finite values are rejected so downstream code can trust every stored value.
// Empty labels are replaced with "Period N".
func NewPeriodSeries(periods []Period) (PeriodSeries, error) {
	out := make([]Period, 0, len(periods))
	for i, p := range periods {
		values := make(map[Field]float64, len(p.Values))
		for f, v := range p.Values {
			if !IsNumericField(f) {
				return PeriodSeries{}, fmt.Errorf("period %d: unknown field %q", i+1, f)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return PeriodSeries{}, fmt.Errorf("period %d: field %q is not a finite number", i+1, f)
			}
			values[f] = v
		}
		label := strings.TrimSpace(p.Label)
		if label == "" {
			label = fmt.Sprintf("Period %d", i+1)
		}
		out = append(out, Period{Label: label, Values: values})
	}
	return PeriodSeries{periods: out}, nil
}

// Len returns the number of periods.
func (s PeriodSeries) Len() int {
	return len(s.periods)
}

// At returns a copy of the i-th period.
func (s PeriodSeries) At(i int) Period {
	p := s.periods[i]
	values := make(map[Field]float64, len(p.Values))
	for f, v := range p.Values {
		values[f] = v
	}
	return Period{Label: p.Label, Values: values}
}

// Latest returns the most recent period. It panics on an empty series; call
// Validate first.
func (s PeriodSeries) Latest() Period {
	return s.At(len(s.periods) - 1)
}

// Labels returns the period labels in order.
func (s PeriodSeries) Labels() []string {
	labels := make([]string, len(s.periods))
	for i, p := range s.periods {
		labels[i] = p.Label
	}
	return labels
}

// Column returns the value of f for every period, nil where absent.
func (s PeriodSeries) Column(f Field) []*float64 {
	col := make([]*float64, len(s.periods))
	for i, p := range s.periods {
		if v, ok := p.Values[f]; ok {
			v := v
			col[i] = &v
		}
	}
	return col
}

// Present returns the values of f for the periods that carry it, in order.
func (s PeriodSeries) Present(f Field) []float64 {
	var vals []float64
	for _, p := range s.periods {
		if v, ok := p.Values[f]; ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// Validate checks the series invariant: at least one period and revenue in the
// latest one.
func (s PeriodSeries) Validate() error {
	if len(s.periods) == 0 {
		return fmt.Errorf("series has no periods")
	}
	if _, ok := s.periods[len(s.periods)-1].Values[Revenue]; !ok {
		return fmt.Errorf("latest period %q has no revenue", s.periods[len(s.periods)-1].Label)
	}
	return nil
}

// Periods returns a deep copy of all periods.
func (s PeriodSeries) Periods() []Period {
	out := make([]Period, len(s.periods))
	for i := range s.periods {
		out[i] = s.At(i)
	}
	return out
}

// MarshalJSON encodes the series as its period list. Map keys are sorted by
// encoding/json, so the output is canonical for a given series.
func (s PeriodSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.periods)
}
