package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ChatCompletionsProvider talks to any OpenAI-compatible /chat/completions
// endpoint. OpenAI, DeepSeek and Qwen (DashScope compatible mode) share it.
type ChatCompletionsProvider struct {
	Name      string
	BaseURL   string
	APIKey    string
	APIKeyEnv string
	Model     string
	Client    *http.Client
}

var _ Provider = (*ChatCompletionsProvider)(nil)

// NewOpenAIProvider returns a provider for api.openai.com.
func NewOpenAIProvider(model string) *ChatCompletionsProvider {
	return &ChatCompletionsProvider{Name: "openai", BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY", Model: orModel(model, "gpt-4o-mini")}
}

// NewDeepSeekProvider returns a provider for api.deepseek.com.
func NewDeepSeekProvider(model string) *ChatCompletionsProvider {
	return &ChatCompletionsProvider{Name: "deepseek", BaseURL: "https://api.deepseek.com", APIKeyEnv: "DEEPSEEK_API_KEY", Model: orModel(model, "deepseek-chat")}
}

// NewQwenProvider returns a provider for DashScope's compatible mode.
func NewQwenProvider(model string) *ChatCompletionsProvider {
	return &ChatCompletionsProvider{Name: "qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", APIKeyEnv: "DASHSCOPE_API_KEY", Model: orModel(model, "qwen-max")}
}

type Message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *ChatCompletionsProvider) GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error) {
	apiKey := p.APIKey
	if apiKey == "" && p.APIKeyEnv != "" {
		apiKey = os.Getenv(p.APIKeyEnv)
	}
	if apiKey == "" {
		return "", fmt.Errorf("%s: %w", p.Name, ErrMissingAPIKey)
	}

	reqBody := chatRequest{
		Model:       stringOpt(options, OptModel, p.Model),
		MaxTokens:   intOpt(options, OptMaxTokens, 4096),
		Temperature: floatOpt(options, OptTemperature, 0.3),
	}
	if systemPrompt != "" {
		reqBody.Messages = append(reqBody.Messages, Message{Role: "system", Content: systemPrompt})
	}
	reqBody.Messages = append(reqBody.Messages, Message{Role: "user", Content: prompt})
	if wantsJSON(options, prompt, systemPrompt) {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", p.Name, err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", p.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: api call: %w", p.Name, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", p.Name, err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: api error: status=%d body=%s", p.Name, res.StatusCode, truncate(string(body), 300))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%s: unmarshal response: %w", p.Name, err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("%s: %s", p.Name, response.Error.Message)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: %w", p.Name, ErrEmptyResponse)
	}
	return response.Choices[0].Message.Content, nil
}

func (p *ChatCompletionsProvider) AdaptInstructions(raw string) string {
	return raw
}

func orModel(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
