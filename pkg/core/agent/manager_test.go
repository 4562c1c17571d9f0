package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/core/llm"
)

type MockProvider struct {
	Name          string
	GenerateFunc  func(ctx context.Context, prompt, system string) (string, error)
	LastSystem    string
	AdaptedSuffix string
}

func (m *MockProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	m.LastSystem = systemPrompt
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, systemPrompt)
	}
	return m.Name, nil
}

func (m *MockProvider) AdaptInstructions(raw string) string {
	return raw + m.AdaptedSuffix
}

func newTestManager(cfg Config) (*Manager, map[string]*MockProvider) {
	mocks := map[string]*MockProvider{
		"gemini": {Name: "gemini"},
		"claude": {Name: "claude", AdaptedSuffix: " [adapted]"},
	}
	providers := map[string]llm.Provider{}
	for k, v := range mocks {
		providers[k] = v
	}
	return NewManagerWithProviders(cfg, providers, zerolog.Nop()), mocks
}

func TestManager_GetProvider(t *testing.T) {
	m, mocks := newTestManager(Config{
		ActiveProvider: "gemini",
		Agents:         map[string]AgentConfig{"insight": {Provider: "claude"}},
	})

	assert.Same(t, mocks["claude"], m.GetProvider("insight"))
	assert.Same(t, mocks["gemini"], m.GetProvider("other"))

	none, _ := newTestManager(Config{ActiveProvider: "missing"})
	assert.Nil(t, none.GetProvider("insight"))
	assert.Nil(t, none.For("insight"))
}

func TestManager_ExecutePromptAdaptsInstructions(t *testing.T) {
	m, mocks := newTestManager(Config{ActiveProvider: "claude"})

	out, err := m.For("insight").GenerateResponse(context.Background(), "p", "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", out)
	assert.Equal(t, "sys [adapted]", mocks["claude"].LastSystem)
}

func TestManager_SetGlobalProvider(t *testing.T) {
	m, _ := newTestManager(Config{ActiveProvider: "gemini"})
	bound := m.For("insight")

	require.NoError(t, m.SetGlobalProvider("claude"))
	assert.Equal(t, "claude", m.GetActiveProvider())

	out, err := bound.GenerateResponse(context.Background(), "p", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "claude", out)

	assert.Error(t, m.SetGlobalProvider("nope"))
	assert.Equal(t, []string{"claude", "gemini"}, m.ProviderNames())
}

func TestManager_RateLimitHonoursContext(t *testing.T) {
	m, _ := newTestManager(Config{ActiveProvider: "gemini", RatePerMinute: 1})

	_, err := m.ExecutePrompt(context.Background(), "insight", "p", "", nil)
	require.NoError(t, err)

	// The bucket is empty now; the next token is a minute away.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.ExecutePrompt(ctx, "insight", "p", "", nil)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
}

func TestManager_OnSwitch(t *testing.T) {
	m, _ := newTestManager(Config{ActiveProvider: "gemini"})
	var got []string
	m.OnSwitch(func(provider string) { got = append(got, provider) })

	require.NoError(t, m.SetGlobalProvider("claude"))
	assert.Error(t, m.SetGlobalProvider("nope"))
	assert.Equal(t, []string{"claude"}, got)
}
