package llm

import (
	"context"
	"errors"
	"strings"
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// AdaptInstructions transforms raw instructions into model-specific formats
	AdaptInstructions(rawInstructions string) string
}

// ErrMissingAPIKey is returned when a provider has no credentials configured.
var ErrMissingAPIKey = errors.New("api key not configured")

// ErrEmptyResponse is returned when a provider answered without any text.
var ErrEmptyResponse = errors.New("empty response")

// ErrRateLimited is returned when a call was refused locally before reaching
// the provider.
var ErrRateLimited = errors.New("rate limited")

// Option keys understood by every provider.
const (
	OptModel       = "model"
	OptTemperature = "temperature"
	OptMaxTokens   = "max_tokens"
	OptJSON        = "json"
)

func stringOpt(options map[string]interface{}, key, def string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func floatOpt(options map[string]interface{}, key string, def float64) float64 {
	switch v := options[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func intOpt(options map[string]interface{}, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// wantsJSON reports whether the caller asked for a JSON body, either explicitly
// or by mentioning JSON in the prompts.
func wantsJSON(options map[string]interface{}, prompt, systemPrompt string) bool {
	if v, ok := options[OptJSON].(bool); ok {
		return v
	}
	return strings.Contains(strings.ToLower(systemPrompt), "json") || strings.Contains(strings.ToLower(prompt), "json")
}
