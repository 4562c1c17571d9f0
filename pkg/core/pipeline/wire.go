package pipeline

import (
	"github.com/rs/zerolog"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/config"
	"finstory/pkg/core/insight"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/prompt"
	"finstory/pkg/core/recommend"
)

// FromConfig builds an orchestrator from validated configuration. provider may
// be nil, in which case every narrative comes from the local template. prompts
// may be nil to use the built-in prompt set.
func FromConfig(cfg *config.Config, provider llm.Provider, prompts *prompt.Registry, logger zerolog.Logger) *Orchestrator {
	local := &insight.LocalTemplateStrategy{Thresholds: cfg.Thresholds}

	var external insight.Strategy
	if cfg.Insight.Enabled && provider != nil {
		external = &insight.ExternalTextStrategy{Provider: provider, Prompts: prompts}
	}

	return NewOrchestrator(Options{
		Metrics:     analysis.NewEngine(cfg.EngineOptions()),
		Insights:    insight.NewGenerator(external, local, cfg.Personas, cfg.InsightOptions(), logger),
		Risks:       RuleClassifier{Thresholds: cfg.Thresholds},
		Charts:      StandardCharts{},
		Recommender: recommend.NewSynthesizer(cfg.Personas),
		Logger:      logger,
	})
}
