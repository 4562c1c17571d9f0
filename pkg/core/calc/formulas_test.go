package calc

import (
	"encoding/json"
	"math"
	"testing"
)

func TestGrowthRate(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		prior     float64
		expected  float64
		available bool
	}{
		{"decline", 1_100_000, 1_200_000, -8.3333, true},
		{"increase", 1_150_000, 1_000_000, 15.0, true},
		{"negative prior uses magnitude", -50, -100, 50.0, true},
		{"zero prior undefined", 10, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := GrowthRate(tt.current, tt.prior)
			if m.Available != tt.available {
				t.Fatalf("Expected available=%v, got %+v", tt.available, m)
			}
			if tt.available && math.Abs(m.Value-tt.expected) > 0.001 {
				t.Errorf("Expected %.4f, got %.4f", tt.expected, m.Value)
			}
		})
	}
}

func TestGrowthRateSignMatchesDirection(t *testing.T) {
	for _, pair := range [][2]float64{{5, 3}, {3, 5}, {-1, -4}, {-4, -1}, {2, -2}} {
		m := GrowthRate(pair[0], pair[1])
		if !m.Available {
			t.Fatalf("growth %v unexpectedly unavailable", pair)
		}
		up := pair[0] > pair[1]
		if up != (m.Value > 0) {
			t.Errorf("growth for %v has wrong sign: %f", pair, m.Value)
		}
	}
}

func TestCAGR(t *testing.T) {
	// 100 -> 121 over two periods is 10% per period
	m := CAGR(121, 100, 2)
	if !m.Available || math.Abs(m.Value-10) > 0.0001 {
		t.Errorf("Expected CAGR 10%%, got %+v", m)
	}

	if m := CAGR(121, 0, 2); m.Available {
		t.Errorf("Expected zero beginning to be unavailable, got %+v", m)
	}
	if m := CAGR(121, -5, 2); m.Available {
		t.Errorf("Expected negative beginning to be unavailable, got %+v", m)
	}
	if m := CAGR(121, 100, 0); m.Available {
		t.Errorf("Expected zero periods to be unavailable, got %+v", m)
	}
	// Negative ending with a fractional exponent is NaN and must not leak
	if m := CAGR(-10, 100, 3); m.Available {
		t.Errorf("Expected non-finite CAGR to be unavailable, got %+v", m)
	}
}

func TestMarginsUndefinedAtZeroRevenue(t *testing.T) {
	for _, m := range []Metric{GrossMargin(0, 50), Margin(10, 0), Margin(0, 0)} {
		if m.Available {
			t.Errorf("Expected margin to be unavailable at zero revenue, got %+v", m)
		}
		if m.Reason != "revenue is zero" {
			t.Errorf("Unexpected reason %q", m.Reason)
		}
	}

	net := Margin(190_000, 1_100_000)
	if math.Abs(net.Value-17.2727) > 0.001 {
		t.Errorf("Expected net margin 17.27, got %f", net.Value)
	}
	gross := GrossMargin(1000, 600)
	if gross.Value != 40 {
		t.Errorf("Expected gross margin 40, got %f", gross.Value)
	}
}

func TestDelta(t *testing.T) {
	d := Delta(Of(30), Of(35))
	if !d.Available || d.Value != -5 {
		t.Errorf("Expected -5, got %+v", d)
	}
	if d := Delta(Of(30), Unavailable("revenue is zero")); d.Available {
		t.Errorf("Expected unavailable delta, got %+v", d)
	}
}

func TestRatios(t *testing.T) {
	if m := CurrentRatio(150, 100); m.Value != 1.5 {
		t.Errorf("Expected current ratio 1.5, got %+v", m)
	}
	if m := QuickRatio(150, 50, 100); m.Value != 1.0 {
		t.Errorf("Expected quick ratio 1.0, got %+v", m)
	}
	if m := DebtToEquity(300, 0); m.Available {
		t.Errorf("Expected zero equity to be unavailable, got %+v", m)
	}
	if m := ReturnOn(20, 200); m.Value != 10 {
		t.Errorf("Expected 10%% return, got %+v", m)
	}
}

func TestFreeCashFlowCapexSign(t *testing.T) {
	if FreeCashFlow(100, 30) != 70 || FreeCashFlow(100, -30) != 70 {
		t.Errorf("Expected both capex sign conventions to give 70")
	}
}

func TestRunway(t *testing.T) {
	m := Runway(600, -100)
	if !m.Available || m.Value != 6 {
		t.Errorf("Expected 6 periods, got %+v", m)
	}
	if m := Runway(600, 0); m.Available {
		t.Errorf("Expected no burn to be unavailable, got %+v", m)
	}
}

func TestCashConversionCycle(t *testing.T) {
	// DSO 36.5 + DIO 73 - DPO 18.25
	m := CashConversionCycle(100, 200, 50, 1000, 365)
	if math.Abs(m.Value-91.25) > 0.0001 {
		t.Errorf("Expected 91.25 days, got %+v", m)
	}
}

func TestMetricJSON(t *testing.T) {
	b, _ := json.Marshal(Of(0))
	if string(b) != `{"value":0,"available":true}` {
		t.Errorf("Unexpected JSON for zero metric: %s", b)
	}
	b, _ = json.Marshal(Unavailable("missing revenue"))
	if string(b) != `{"available":false,"reason":"missing revenue"}` {
		t.Errorf("Unexpected JSON for unavailable metric: %s", b)
	}
	if m := Of(math.Inf(1)); m.Available {
		t.Errorf("Expected Inf to be unavailable")
	}
}
