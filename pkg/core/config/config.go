// Package config loads the immutable configuration handed to the pipeline
// constructors: defaults, then a YAML file, then .env and FINSTORY_*
// environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"finstory/pkg/core/agent"
	"finstory/pkg/core/analysis"
	"finstory/pkg/core/insight"
	"finstory/pkg/core/logger"
	"finstory/pkg/core/risk"
	"finstory/pkg/models"
)

var validate = validator.New()

// Config is the full application configuration.
type Config struct {
	Personas   map[models.Persona]models.PersonaProfile `yaml:"personas" json:"personas" validate:"required"`
	Thresholds risk.Thresholds                          `yaml:"thresholds" json:"thresholds"`
	Trend      TrendConfig                              `yaml:"trend" json:"trend"`
	Metrics    MetricsConfig                            `yaml:"metrics" json:"metrics"`
	Insight    InsightConfig                            `yaml:"insight" json:"insight"`
	LLM        agent.Config                             `yaml:"llm" json:"-"`
	Server     ServerConfig                             `yaml:"server" json:"server"`
	Log        LogConfig                                `yaml:"log" json:"log"`
	Cache      CacheConfig                              `yaml:"cache" json:"-"`
}

type TrendConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"gt=0,lt=1"`
	Window    int     `yaml:"window" json:"window" validate:"gte=1"`
}

type MetricsConfig struct {
	AssumeZeroCapex bool    `yaml:"assume_zero_capex" json:"assume_zero_capex"`
	PeriodDays      float64 `yaml:"period_days" json:"period_days" validate:"gt=0"`
}

type InsightConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	AgentType   string        `yaml:"agent_type" json:"agent_type"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	MaxFailures int           `yaml:"max_failures" json:"max_failures" validate:"gte=0"`
	Cooldown    time.Duration `yaml:"cooldown" json:"cooldown" validate:"gte=0"`
	PromptDir   string        `yaml:"prompt_dir" json:"prompt_dir"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error disabled"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// CacheConfig enables the optional result cache. DatabaseURL wins over Dir.
type CacheConfig struct {
	Dir         string        `yaml:"dir"`
	DatabaseURL string        `yaml:"database_url"`
	TTL         time.Duration `yaml:"ttl" validate:"gte=0"`
}

// Default returns a configuration that validates without any file or
// environment input.
func Default() *Config {
	ic := insight.DefaultConfig()
	return &Config{
		Personas:   models.DefaultPersonaProfiles(),
		Thresholds: risk.DefaultThresholds(),
		Trend:      TrendConfig{Threshold: 0.02, Window: 3},
		Metrics:    MetricsConfig{PeriodDays: 365},
		Insight: InsightConfig{
			Enabled:     true,
			AgentType:   "insight",
			Timeout:     ic.Timeout,
			MaxFailures: ic.MaxFailures,
			Cooldown:    ic.Cooldown,
			PromptDir:   "resources/prompts",
		},
		LLM: agent.Config{
			ActiveProvider: "gemini",
			RatePerMinute:  30,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   10 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file; a
// path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.ActiveProvider = getEnv("FINSTORY_PROVIDER", c.LLM.ActiveProvider)
	c.LLM.RatePerMinute = getEnvAsInt("FINSTORY_RATE_PER_MINUTE", c.LLM.RatePerMinute)
	c.Insight.Enabled = getEnvAsBool("FINSTORY_INSIGHT_ENABLED", c.Insight.Enabled)
	c.Insight.Timeout = getEnvAsDuration("FINSTORY_INSIGHT_TIMEOUT", c.Insight.Timeout)
	c.Insight.PromptDir = getEnv("FINSTORY_PROMPT_DIR", c.Insight.PromptDir)
	c.Trend.Threshold = getEnvAsFloat("FINSTORY_TREND_THRESHOLD", c.Trend.Threshold)
	c.Metrics.AssumeZeroCapex = getEnvAsBool("FINSTORY_ASSUME_ZERO_CAPEX", c.Metrics.AssumeZeroCapex)
	c.Server.Port = getEnvAsInt("FINSTORY_PORT", c.Server.Port)
	if origins := os.Getenv("FINSTORY_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Log.Level = strings.ToLower(getEnv("FINSTORY_LOG_LEVEL", c.Log.Level))
	c.Log.Pretty = getEnvAsBool("FINSTORY_LOG_PRETTY", c.Log.Pretty)
	c.Cache.Dir = getEnv("FINSTORY_CACHE_DIR", c.Cache.Dir)
	c.Cache.DatabaseURL = getEnv("DATABASE_URL", c.Cache.DatabaseURL)
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, p := range models.Personas {
		profile, ok := c.Personas[p]
		if !ok {
			return fmt.Errorf("invalid config: persona %s is not defined", p)
		}
		for cat, w := range profile.Weights {
			if w < 0 {
				return fmt.Errorf("invalid config: persona %s has negative weight for %s", p, cat)
			}
		}
	}
	if c.Thresholds.RevenueDeclineSevere > c.Thresholds.RevenueDecline {
		return fmt.Errorf("invalid thresholds: revenue_decline_severe (%.2f) must not exceed revenue_decline (%.2f)",
			c.Thresholds.RevenueDeclineSevere, c.Thresholds.RevenueDecline)
	}
	if c.Thresholds.CurrentRatioCritical > c.Thresholds.CurrentRatioLow {
		return fmt.Errorf("invalid thresholds: current_ratio_critical (%.2f) must not exceed current_ratio_low (%.2f)",
			c.Thresholds.CurrentRatioCritical, c.Thresholds.CurrentRatioLow)
	}
	return nil
}

// EngineOptions maps the metrics and trend sections onto the engine options.
func (c *Config) EngineOptions() analysis.Options {
	return analysis.Options{
		TrendThreshold:  c.Trend.Threshold,
		TrendWindow:     c.Trend.Window,
		AssumeZeroCapex: c.Metrics.AssumeZeroCapex,
		PeriodDays:      c.Metrics.PeriodDays,
	}
}

// InsightOptions maps the insight section onto the generator config.
func (c *Config) InsightOptions() insight.Config {
	return insight.Config{
		Timeout:     c.Insight.Timeout,
		MaxFailures: c.Insight.MaxFailures,
		Cooldown:    c.Insight.Cooldown,
	}
}

// LoggerConfig maps the log section onto the logger config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
