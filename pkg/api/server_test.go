package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/core/agent"
	"finstory/pkg/core/config"
	"finstory/pkg/core/insight"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/pipeline"
)

// MockProvider implements llm.Provider.
type MockProvider struct {
	GenerateResponseFunc func(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error)
}

func (m *MockProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemPrompt, options)
	}
	return "", nil
}

func (m *MockProvider) AdaptInstructions(raw string) string { return raw }

func newServer(t *testing.T, agents *agent.Manager) *Server {
	t.Helper()
	cfg := config.Default()
	return New(Config{
		App:    cfg,
		Runner: pipeline.NewOrchestrator(pipeline.Options{Logger: zerolog.Nop()}),
		Agents: agents,
		Health: insight.NewHealth(cfg.Insight.MaxFailures, cfg.Insight.Cooldown),
		Log:    zerolog.Nop(),
	})
}

func newAgents() *agent.Manager {
	return agent.NewManagerWithProviders(agent.Config{ActiveProvider: "gemini"}, map[string]llm.Provider{
		"gemini": &MockProvider{},
		"claude": &MockProvider{},
	}, zerolog.Nop())
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newServer(t, newAgents()), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "gemini", body.ActiveProvider)
	assert.Equal(t, 0, body.InsightFailures)
	assert.False(t, body.InsightPaused)
}

func TestHealth_NoProvider(t *testing.T) {
	rec := do(newServer(t, nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "active_provider")
}

func TestConfigEndpoints(t *testing.T) {
	s := newServer(t, newAgents())

	rec := do(s, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg struct {
		ActiveProvider string                 `json:"active_provider"`
		Available      []string               `json:"available"`
		Personas       map[string]interface{} `json:"personas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "gemini", cfg.ActiveProvider)
	assert.Equal(t, []string{"claude", "gemini"}, cfg.Available)
	assert.Contains(t, cfg.Personas, "CFO")

	rec = do(s, http.MethodPost, "/api/config/switch", `{"provider": "Claude"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"active_provider": "claude"}`, rec.Body.String())

	rec = do(s, http.MethodPost, "/api/config/switch", `{"provider": "kimi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kimi")

	rec = do(s, http.MethodGet, "/health", "")
	assert.Contains(t, rec.Body.String(), `"active_provider":"claude"`)
}

func TestConfigSwitch_ResetsInsightBreaker(t *testing.T) {
	health := insight.NewHealth(1, time.Hour)
	s := New(Config{
		App:    config.Default(),
		Runner: pipeline.NewOrchestrator(pipeline.Options{Logger: zerolog.Nop()}),
		Agents: newAgents(),
		Health: health,
		Log:    zerolog.Nop(),
	})
	health.RecordFailure(time.Now())
	require.False(t, health.Available(time.Now()))

	rec := do(s, http.MethodPost, "/api/config/switch", `{"provider": "claude"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, health.Available(time.Now()))
	assert.Zero(t, health.Failures())
}

func TestConfigSwitch_NoProvider(t *testing.T) {
	rec := do(newServer(t, nil), http.MethodPost, "/api/config/switch", `{"provider": "gemini"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAnalyzeRoute(t *testing.T) {
	body := `{"periods": [
		{"period_label": "FY2023", "revenue": 800000, "net_income": 60000},
		{"period_label": "FY2024", "revenue": 900000, "net_income": 75000}
	]}`
	rec := do(newServer(t, nil), http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status": "success"`)

	rec = do(newServer(t, nil), http.MethodGet, "/api/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	newServer(t, nil).Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
