package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/calc"
	"finstory/pkg/core/charts"
	"finstory/pkg/core/insight"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

// State is a pipeline state.
type State string

const (
	StateInit                 State = "init"
	StateMetricsComputed      State = "metrics_computed"
	StateInsightsReady        State = "insights_ready"
	StateRisksReady           State = "risks_ready"
	StateChartsReady          State = "charts_ready"
	StateRecommendationsReady State = "recommendations_ready"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Result is the envelope for one run. It is owned by the caller once Run
// returns.
type Result struct {
	RunID           string                   `json:"run_id,omitempty"`
	Status          Status                   `json:"status"`
	State           State                    `json:"state"`
	Persona         models.Persona           `json:"persona,omitempty"`
	Metrics         *analysis.Bundle         `json:"metrics,omitempty"`
	Insights        *insight.Record          `json:"insights,omitempty"`
	Risks           []risk.Finding           `json:"risks"`
	Charts          map[string]charts.Series `json:"charts,omitempty"`
	Recommendations []string                 `json:"recommendations"`
	Trends          map[string]calc.Trend    `json:"trends,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	InsightSource   insight.Source           `json:"insight_source,omitempty"`
	Degraded        bool                     `json:"degraded,omitempty"`
	DegradedReason  string                   `json:"degraded_reason,omitempty"`
	StageFaults     []string                 `json:"stage_faults,omitempty"`
	Trace           []State                  `json:"trace,omitempty"`
	DurationMS      int64                    `json:"duration_ms,omitempty"`
}

func (r *Result) transition(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

func (r *Result) fault(log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("stage fault, substituting empty result")
	r.StageFaults = append(r.StageFaults, err.Error())
}

// failed builds the terminal envelope: status and reason only.
func failed(err error) *Result {
	return &Result{Status: StatusError, State: StateFailed, Reason: err.Error()}
}

// StageFault is a recovered error or panic from one stage.
type StageFault struct {
	Stage string
	Err   error
	Panic interface{}
}

func (f *StageFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("%s stage panicked: %v", f.Stage, f.Panic)
	}
	return fmt.Sprintf("%s stage failed: %v", f.Stage, f.Err)
}

func (f *StageFault) Unwrap() error {
	return f.Err
}

// guard runs one stage, turning both returned errors and panics into a
// *StageFault.
func guard[T any](stage string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = &StageFault{Stage: stage, Err: fmt.Errorf("panic: %v", r), Panic: r}
		}
	}()
	out, err = fn()
	if err != nil {
		var zero T
		return zero, &StageFault{Stage: stage, Err: err}
	}
	return out, nil
}
