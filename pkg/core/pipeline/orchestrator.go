// Package pipeline runs one analysis end to end:
//
//	Init -> MetricsComputed -> {InsightsReady, RisksReady, ChartsReady} -> RecommendationsReady -> Done
//
// with Failed reachable from Init (insufficient data) or from a fault in the
// metrics stage. The three middle stages run concurrently over the same
// immutable bundle. A fault in the risk, chart or recommendation stage is
// recovered, logged and replaced with an empty result; the run then finishes
// as partial.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/charts"
	"finstory/pkg/core/insight"
	"finstory/pkg/core/recommend"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

// ErrCancelled is returned when the caller cancels a run. No result is
// returned with it.
var ErrCancelled = errors.New("analysis cancelled")

// --- Collaborators ---

// MetricsEngine computes the bundle for a series.
type MetricsEngine interface {
	Compute(series models.PeriodSeries) (*analysis.Bundle, error)
}

// InsightGenerator produces the narrative. It must not fail; degradation is
// reported through the outcome.
type InsightGenerator interface {
	Generate(ctx context.Context, bundle *analysis.Bundle, persona models.Persona) insight.Outcome
}

// RiskClassifier flags risks in a bundle.
type RiskClassifier interface {
	Classify(bundle *analysis.Bundle) ([]risk.Finding, error)
}

// ChartBuilder builds chart series.
type ChartBuilder interface {
	Build(series models.PeriodSeries, bundle *analysis.Bundle) (map[string]charts.Series, error)
}

// Recommender ranks the final recommendations. findings is nil when the risk
// stage failed.
type Recommender interface {
	Synthesize(bundle *analysis.Bundle, findings []risk.Finding, persona models.Persona) []string
}

// RuleClassifier runs the pure rule set with fixed thresholds.
type RuleClassifier struct {
	Thresholds risk.Thresholds
}

func (c RuleClassifier) Classify(bundle *analysis.Bundle) ([]risk.Finding, error) {
	return risk.Classify(bundle, c.Thresholds), nil
}

// StandardCharts builds the full chart set.
type StandardCharts struct{}

func (StandardCharts) Build(series models.PeriodSeries, bundle *analysis.Bundle) (map[string]charts.Series, error) {
	return charts.Build(series, bundle), nil
}

// Runner runs one analysis. *Orchestrator implements it, as do wrappers such
// as the result cache.
type Runner interface {
	Run(ctx context.Context, series models.PeriodSeries, persona models.Persona) (*Result, error)
}

var _ Runner = (*Orchestrator)(nil)

// Options wires an Orchestrator. Nil collaborators get the built-in ones.
type Options struct {
	Metrics     MetricsEngine
	Insights    InsightGenerator
	Risks       RiskClassifier
	Charts      ChartBuilder
	Recommender Recommender
	Logger      zerolog.Logger
}

// Orchestrator holds only immutable collaborators; concurrent Runs share no
// mutable state.
type Orchestrator struct {
	metrics     MetricsEngine
	insights    InsightGenerator
	risks       RiskClassifier
	charts      ChartBuilder
	recommender Recommender
	logger      zerolog.Logger
}

// NewOrchestrator creates an orchestrator from the given options.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		metrics:     opts.Metrics,
		insights:    opts.Insights,
		risks:       opts.Risks,
		charts:      opts.Charts,
		recommender: opts.Recommender,
		logger:      opts.Logger.With().Str("component", "pipeline").Logger(),
	}
	if o.metrics == nil {
		o.metrics = analysis.NewEngine(analysis.DefaultOptions())
	}
	if o.insights == nil {
		o.insights = insight.NewGenerator(nil, nil, nil, insight.DefaultConfig(), opts.Logger)
	}
	if o.risks == nil {
		o.risks = RuleClassifier{Thresholds: risk.DefaultThresholds()}
	}
	if o.charts == nil {
		o.charts = StandardCharts{}
	}
	if o.recommender == nil {
		o.recommender = recommend.NewSynthesizer(nil)
	}
	return o
}

// InsightHealth returns the breaker of the built-in insight generator, or nil
// when a custom generator is wired.
func (o *Orchestrator) InsightHealth() *insight.Health {
	if g, ok := o.insights.(*insight.Generator); ok {
		return g.Health()
	}
	return nil
}

// Run executes the pipeline for one series and persona.
//
// On insufficient data it returns a Failed result carrying only the status
// and reason, together with the typed error. On cancellation it returns
// (nil, error wrapping ErrCancelled). Otherwise the error is nil and the
// result status is success or partial.
func (o *Orchestrator) Run(ctx context.Context, series models.PeriodSeries, persona models.Persona) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.logger.With().Str("run_id", runID).Logger()

	resolved, ok := models.ParsePersona(string(persona))
	if !ok {
		log.Warn().Str("persona", string(persona)).Str("fallback", string(resolved)).Msg("unknown persona, using fallback")
	}
	persona = resolved
	log = log.With().Str("persona", string(persona)).Logger()

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	run := &Result{RunID: runID, Persona: persona}
	run.transition(StateInit)

	// Init -> MetricsComputed
	bundle, err := o.computeMetrics(series)
	if err != nil {
		log.Warn().Err(err).Msg("analysis failed")
		return failed(err), err
	}
	run.transition(StateMetricsComputed)
	run.Metrics = bundle
	run.Trends = bundle.Trends

	// MetricsComputed -> {InsightsReady, RisksReady, ChartsReady}
	var (
		outcome    insight.Outcome
		findings   []risk.Finding
		chartSet   map[string]charts.Series
		insightErr error
		riskErr    error
		chartErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outcome, insightErr = guard("insights", func() (insight.Outcome, error) {
			return o.insights.Generate(gctx, bundle, persona), nil
		})
		return nil
	})
	g.Go(func() error {
		findings, riskErr = guard("risks", func() ([]risk.Finding, error) {
			return o.risks.Classify(bundle)
		})
		return nil
	})
	g.Go(func() error {
		chartSet, chartErr = guard("charts", func() (map[string]charts.Series, error) {
			return o.charts.Build(series, bundle)
		})
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Info().Msg("analysis cancelled")
		return nil, cancelled(err)
	}

	if insightErr != nil {
		run.fault(log, insightErr)
		outcome = insight.Outcome{
			Source:   insight.SourceTemplate,
			Degraded: true,
			Reason:   insightErr.Error(),
			Record:   insight.Record{Summary: fmt.Sprintf("%s analysis of %s; narrative unavailable.", persona, bundle.LatestLabel)}.Normalize(),
		}
	}
	rec := outcome.Record.Normalize()
	run.Insights = &rec
	run.InsightSource = outcome.Source
	run.Degraded = outcome.Degraded
	run.DegradedReason = outcome.Reason
	if outcome.Degraded {
		log.Info().Str("reason", outcome.Reason).Msg("insights degraded to template")
	}
	run.transition(StateInsightsReady)

	if riskErr != nil {
		run.fault(log, riskErr)
		findings = nil
		run.Risks = []risk.Finding{}
	} else {
		run.Risks = risk.Dedupe(findings)
		findings = run.Risks
	}
	run.transition(StateRisksReady)

	if chartErr != nil {
		run.fault(log, chartErr)
		chartSet = nil
	}
	if chartSet == nil {
		chartSet = map[string]charts.Series{}
	}
	run.Charts = chartSet
	run.transition(StateChartsReady)

	// -> RecommendationsReady
	recs, err := guard("recommendations", func() ([]string, error) {
		return o.recommender.Synthesize(bundle, findings, persona), nil
	})
	if err != nil {
		run.fault(log, err)
		recs = []string{}
	}
	if recs == nil {
		recs = []string{}
	}
	run.Recommendations = recs
	run.transition(StateRecommendationsReady)

	// -> Done
	run.Status = StatusSuccess
	if len(run.StageFaults) > 0 {
		run.Status = StatusPartial
	}
	run.transition(StateDone)
	run.DurationMS = time.Since(start).Milliseconds()

	log.Info().
		Str("status", string(run.Status)).
		Int("risks", len(run.Risks)).
		Int("recommendations", len(run.Recommendations)).
		Bool("degraded", run.Degraded).
		Int64("duration_ms", run.DurationMS).
		Msg("analysis complete")
	return run, nil
}

// computeMetrics treats a panic in the engine as a fatal stage fault.
func (o *Orchestrator) computeMetrics(series models.PeriodSeries) (*analysis.Bundle, error) {
	bundle, err := guard("metrics", func() (*analysis.Bundle, error) {
		return o.metrics.Compute(series)
	})
	if err != nil {
		var fault *StageFault
		if errors.As(err, &fault) && fault.Panic == nil {
			// Plain engine errors keep their own type (e.g. InsufficientDataError).
			return nil, fault.Err
		}
		return nil, err
	}
	if bundle == nil {
		return nil, &StageFault{Stage: "metrics", Err: errors.New("engine returned no metrics")}
	}
	return bundle, nil
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
