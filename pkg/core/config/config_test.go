package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finstory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.02, cfg.Trend.Threshold)
	assert.Equal(t, -5.0, cfg.Thresholds.RevenueDecline)
	assert.Len(t, cfg.Personas, 3)
	assert.Equal(t, 30*time.Second, cfg.Insight.Timeout)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
thresholds:
  revenue_decline: -10
  revenue_decline_severe: -25
trend:
  threshold: 0.05
insight:
  timeout: 5s
  cooldown: 2m
llm:
  active_provider: claude
  models:
    claude: claude-sonnet-4-5
personas:
  Investor:
    focus: dividends
    priority: yield
    weights:
      growth: 1
      liquidity: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, -10.0, cfg.Thresholds.RevenueDecline)
	assert.Equal(t, -25.0, cfg.Thresholds.RevenueDeclineSevere)
	assert.Equal(t, 2.0, cfg.Thresholds.DebtToEquityHigh, "unset keys keep their defaults")
	assert.Equal(t, 0.05, cfg.Trend.Threshold)
	assert.Equal(t, 3, cfg.Trend.Window)
	assert.Equal(t, 5*time.Second, cfg.Insight.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Insight.Cooldown)
	assert.Equal(t, "claude", cfg.LLM.ActiveProvider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Models["claude"])

	assert.Equal(t, "dividends", cfg.Personas[models.PersonaInvestor].Focus)
	assert.Equal(t, 4.0, cfg.Personas[models.PersonaInvestor].Weight("liquidity"))
	assert.Contains(t, cfg.Personas, models.PersonaCFO, "personas not in the file are kept")

	opts := cfg.EngineOptions()
	assert.Equal(t, 0.05, opts.TrendThreshold)
	assert.Equal(t, 365.0, opts.PeriodDays)
	assert.Equal(t, 5*time.Second, cfg.InsightOptions().Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FINSTORY_PROVIDER", "deepseek")
	t.Setenv("FINSTORY_PORT", "9090")
	t.Setenv("FINSTORY_LOG_LEVEL", "DEBUG")
	t.Setenv("FINSTORY_ASSUME_ZERO_CAPEX", "true")
	t.Setenv("FINSTORY_INSIGHT_TIMEOUT", "750ms")
	t.Setenv("FINSTORY_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example.com")
	t.Setenv("DATABASE_URL", "postgres://localhost/finstory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.LLM.ActiveProvider)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.AssumeZeroCapex)
	assert.Equal(t, 750*time.Millisecond, cfg.Insight.Timeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/finstory", cfg.Cache.DatabaseURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "trend: [not, a, map]"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"trend threshold out of range", func(c *Config) { c.Trend.Threshold = 1.5 }, "Threshold"},
		{"zero window", func(c *Config) { c.Trend.Window = 0 }, "Window"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"missing persona", func(c *Config) { delete(c.Personas, models.PersonaBoard) }, "persona Board is not defined"},
		{"negative weight", func(c *Config) {
			c.Personas[models.PersonaCFO] = models.PersonaProfile{Weights: map[string]float64{"growth": -1}}
		}, "negative weight"},
		{"severe above decline", func(c *Config) { c.Thresholds.RevenueDeclineSevere = 0 }, "revenue_decline_severe"},
		{"critical above low", func(c *Config) { c.Thresholds.CurrentRatioCritical = 2 }, "current_ratio_critical"},
		{"fcf periods", func(c *Config) { c.Thresholds.NegativeFCFPeriods = 0 }, "NegativeFCFPeriods"},
		{"zero timeout", func(c *Config) { c.Insight.Timeout = 0 }, "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config", "finstory.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Thresholds, cfg.Thresholds)
	assert.Equal(t, def.Trend, cfg.Trend)
	assert.Equal(t, def.Insight.Timeout, cfg.Insight.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Models["gemini"])
}
