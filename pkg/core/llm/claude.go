package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider implements the Provider interface for Anthropic's Messages API.
type ClaudeProvider struct {
	Model     string // e.g. "claude-sonnet-4-5"
	APIKey    string // falls back to ANTHROPIC_API_KEY
	MaxTokens int
	BaseURL   string // optional, used by tests
}

var _ Provider = (*ClaudeProvider)(nil)

func (p *ClaudeProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("claude: %w", ErrMissingAPIKey)
	}

	model := p.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(stringOpt(options, OptModel, model)),
		MaxTokens: int64(intOpt(options, OptMaxTokens, maxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if temp := floatOpt(options, OptTemperature, 0); temp > 0 {
		params.Temperature = anthropic.Float(temp)
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("claude: %w", ErrEmptyResponse)
	}
	return out.String(), nil
}

// AdaptInstructions asks Claude to keep its answer to the requested format.
func (p *ClaudeProvider) AdaptInstructions(raw string) string {
	if raw == "" {
		return raw
	}
	return raw + "\n\nRespond only with the requested content, without preamble."
}
