package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/prompt"
	"finstory/pkg/models"
)

// Request is the input to a strategy.
type Request struct {
	Bundle  *analysis.Bundle
	Persona models.Persona
	Profile models.PersonaProfile
}

// Strategy produces a Record for a request.
type Strategy interface {
	Source() Source
	Generate(ctx context.Context, req Request) (Record, error)
}

// ExternalTextStrategy renders a persona prompt over the metrics, sends it to
// an LLM provider and parses the answer.
type ExternalTextStrategy struct {
	Provider llm.Provider
	Prompts  *prompt.Registry
	Options  map[string]interface{}
}

var _ Strategy = (*ExternalTextStrategy)(nil)

func (s *ExternalTextStrategy) Source() Source { return SourceExternal }

func (s *ExternalTextStrategy) Generate(ctx context.Context, req Request) (Record, error) {
	if s.Provider == nil {
		return Record{}, fmt.Errorf("no provider configured")
	}
	prompts := s.Prompts
	if prompts == nil {
		prompts = prompt.NewDefaultRegistry()
	}

	pt, err := prompts.GetPrompt(prompt.InsightPromptID(req.Persona))
	if err != nil {
		return Record{}, fmt.Errorf("insight prompt: %w", err)
	}
	userPrompt, err := prompt.RenderUserPrompt(pt, PromptContext(req))
	if err != nil {
		return Record{}, fmt.Errorf("render insight prompt: %w", err)
	}

	options := map[string]interface{}{llm.OptJSON: true}
	for k, v := range s.Options {
		options[k] = v
	}

	raw, err := s.Provider.GenerateResponse(ctx, userPrompt, pt.SystemPrompt, options)
	if err != nil {
		return Record{}, fmt.Errorf("generate insights: %w", err)
	}

	rec, _, err := Parse(raw)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// PromptContext builds the template variables for a request. Only computed
// metrics go into the prompt, never the raw series.
func PromptContext(req Request) *prompt.PromptExecutionContext {
	ctx := prompt.NewContext().
		Set("Persona", string(req.Persona)).
		Set("Focus", req.Profile.Focus).
		Set("Priority", req.Profile.Priority).
		Set("Metrics", FormatMetrics(req.Bundle))
	if req.Bundle != nil {
		ctx.Set("Periods", req.Bundle.Periods).
			Set("LatestLabel", req.Bundle.LatestLabel)
		if len(req.Bundle.Assumptions) > 0 {
			ctx.Set("Assumptions", req.Bundle.Assumptions)
		}
	}
	return ctx
}

// FormatMetrics renders the available metrics as "category.metric: value"
// lines in category order. Trend lines carry the direction in parentheses.
func FormatMetrics(b *analysis.Bundle) string {
	if b == nil {
		return ""
	}
	var lines []string
	for _, cat := range analysis.Categories {
		metrics := b.Categories[cat]
		names := make([]string, 0, len(metrics))
		for name, m := range metrics {
			if m.Available {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			line := fmt.Sprintf("%s.%s: %s", cat, name, formatNumber(metrics[name].Value))
			if cat == analysis.Trends {
				if tag, ok := b.Trends[name]; ok {
					line += " (" + string(tag) + ")"
				}
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// formatAmount abbreviates currency-like amounts (1.10M, 250.00K).
func formatAmount(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	}
	return fmt.Sprintf("%.2f", v)
}
