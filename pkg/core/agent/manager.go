package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"finstory/pkg/core/llm"
)

// Config selects which provider serves each agent. It is loaded from the
// `agents` section of the YAML configuration.
type Config struct {
	ActiveProvider string                 `yaml:"active_provider"`
	Models         map[string]string      `yaml:"models"` // provider -> model override
	Agents         map[string]AgentConfig `yaml:"agents"`
	RatePerMinute  int                    `yaml:"rate_per_minute"`
}

type AgentConfig struct {
	Provider    string `yaml:"provider"` // Optional override
	Description string `yaml:"description"`
}

// Manager owns the provider instances and routes agent calls to them.
type Manager struct {
	mu        sync.RWMutex
	config    Config
	providers map[string]llm.Provider
	limiter   *rate.Limiter
	logger    zerolog.Logger
	onSwitch  []func(provider string)
}

// NewManager registers the built-in providers.
func NewManager(config Config, logger zerolog.Logger) *Manager {
	model := func(name string) string { return config.Models[name] }
	return NewManagerWithProviders(config, map[string]llm.Provider{
		"gemini":   &llm.GeminiProvider{Model: model("gemini")},
		"claude":   &llm.ClaudeProvider{Model: model("claude")},
		"openai":   llm.NewOpenAIProvider(model("openai")),
		"deepseek": llm.NewDeepSeekProvider(model("deepseek")),
		"qwen":     llm.NewQwenProvider(model("qwen")),
	}, logger)
}

// NewManagerWithProviders is used by tests and embedders that bring their own
// providers.
func NewManagerWithProviders(config Config, providers map[string]llm.Provider, logger zerolog.Logger) *Manager {
	m := &Manager{
		config:    config,
		providers: providers,
		logger:    logger.With().Str("component", "agent").Logger(),
	}
	if config.RatePerMinute > 0 {
		perSecond := rate.Limit(float64(config.RatePerMinute) / 60)
		m.limiter = rate.NewLimiter(perSecond, 1)
	}
	return m
}

// GetProvider resolves the provider for an agent type: the agent's own
// override first, then the global active provider. It returns nil when
// neither is registered, which callers treat as "no external capability".
func (m *Manager) GetProvider(agentType string) llm.Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if agentConfig, ok := m.config.Agents[agentType]; ok && agentConfig.Provider != "" {
		if p, ok := m.providers[agentConfig.Provider]; ok {
			return p
		}
	}
	if p, ok := m.providers[m.config.ActiveProvider]; ok {
		return p
	}
	return nil
}

// For returns a Provider bound to an agent type. Every call goes through the
// manager's rate limiter and the provider's instruction adaptation, and the
// provider is resolved per call so a provider switch takes effect at once.
// It returns nil when no provider is configured.
func (m *Manager) For(agentType string) llm.Provider {
	if m.GetProvider(agentType) == nil {
		return nil
	}
	return &boundProvider{manager: m, agentType: agentType}
}

// ExecutePrompt handles instruction adaptation before sending to the model
func (m *Manager) ExecutePrompt(ctx context.Context, agentType string, rawPrompt string, rawSystemPrompt string, options map[string]interface{}) (string, error) {
	provider := m.GetProvider(agentType)
	if provider == nil {
		return "", fmt.Errorf("agent %s: no provider configured (active=%q)", agentType, m.GetActiveProvider())
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("agent %s: %w: %w", agentType, llm.ErrRateLimited, err)
		}
	}

	m.logger.Debug().
		Str("agent", agentType).
		Str("provider", fmt.Sprintf("%T", provider)).
		Msg("executing prompt")

	// Adapt instructions based on the model's specialized "teaching" style
	adaptedSystemPrompt := provider.AdaptInstructions(rawSystemPrompt)

	return provider.GenerateResponse(ctx, rawPrompt, adaptedSystemPrompt, options)
}

func (m *Manager) SetGlobalProvider(newProvider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[newProvider]; !ok {
		return fmt.Errorf("provider %s not found", newProvider)
	}
	m.config.ActiveProvider = newProvider
	m.logger.Info().Str("provider", newProvider).Msg("global provider switched")
	for _, fn := range m.onSwitch {
		fn(newProvider)
	}
	return nil
}

// OnSwitch registers fn to run after every successful SetGlobalProvider. fn
// runs with the manager locked and must not call back into it.
func (m *Manager) OnSwitch(fn func(provider string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwitch = append(m.onSwitch, fn)
}

func (m *Manager) GetActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ActiveProvider
}

// ProviderNames lists registered providers in sorted order.
func (m *Manager) ProviderNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type boundProvider struct {
	manager   *Manager
	agentType string
}

func (b *boundProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	return b.manager.ExecutePrompt(ctx, b.agentType, prompt, systemPrompt, options)
}

// AdaptInstructions is applied inside ExecutePrompt.
func (b *boundProvider) AdaptInstructions(raw string) string {
	return raw
}
