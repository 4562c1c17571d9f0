package prompt

import (
	"strings"

	"finstory/pkg/models"
)

// CategoryInsight groups the persona insight prompts.
const CategoryInsight = "insight"

// InsightPromptID returns the registry ID of a persona's insight prompt.
func InsightPromptID(p models.Persona) string {
	return CategoryInsight + "." + strings.ToLower(string(p))
}

const insightSystem = `You are an expert financial analyst writing for a {{PERSONA}}.
You only see computed metrics, never raw statements. Quote numbers exactly as given.
Answer with a single JSON object and nothing else.`

const insightUser = `Financial metrics for {{.Periods}} periods, latest period {{.LatestLabel}}:
{{.Metrics}}
{{if .Assumptions}}
Assumptions applied: {{join .Assumptions ", "}}
{{end}}
The reader's focus: {{.Focus}}.
The reader's priorities: {{.Priority}}.
{{.Instructions}}
Return JSON in exactly this shape:
{
  "key_takeaways": ["3-5 most important insights, specific with numbers"],
  "strengths": ["2-3 financial strengths"],
  "concerns": ["2-3 areas of concern"],
  "recommendations": ["3-5 specific, prioritized actions"],
  "summary": "2-3 sentence executive summary"
}`

var personaInstructions = map[models.Persona]string{
	models.PersonaCFO: `Prioritize:
1. Operational efficiency and cost management
2. Cash flow optimization and working capital
3. Short-term financial health and liquidity
4. Expense control and internal process improvements`,
	models.PersonaInvestor: `Prioritize:
1. Revenue growth and market expansion
2. Profitability and return on investment
3. Growth potential and scalability
4. Long-term value creation`,
	models.PersonaBoard: `Prioritize:
1. Strategic direction and long-term sustainability
2. Governance and risk oversight
3. Stakeholder value
4. Performance against strategic goals`,
}

func builtins() []*PromptTemplate {
	out := make([]*PromptTemplate, 0, len(models.Personas))
	for _, p := range models.Personas {
		out = append(out, &PromptTemplate{
			ID:             InsightPromptID(p),
			Name:           string(p) + " insight narrative",
			Category:       CategoryInsight,
			Description:    "Turns a metrics bundle into persona-tailored insights",
			SystemPrompt:   strings.ReplaceAll(insightSystem, "{{PERSONA}}", string(p)),
			UserPromptTmpl: insightUser,
			Variables: []PromptVariable{
				{Name: "Metrics", Description: "category.metric: value lines", Required: true},
				{Name: "Periods", Description: "number of periods", Default: "0"},
				{Name: "LatestLabel", Description: "label of the latest period"},
				{Name: "Assumptions", Description: "assumptions applied by the engine"},
				{Name: "Focus", Description: "persona focus"},
				{Name: "Priority", Description: "persona priorities"},
				{Name: "Instructions", Description: "persona instructions", Default: personaInstructions[p]},
			},
			Version: "1",
		})
	}
	return out
}
