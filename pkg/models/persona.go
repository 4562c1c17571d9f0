package models

import "strings"

// Persona is the stakeholder viewpoint a narrative is written for.
type Persona string

const (
	PersonaCFO      Persona = "CFO"
	PersonaInvestor Persona = "Investor"
	PersonaBoard    Persona = "Board"
)

// Personas lists the supported personas.
var Personas = []Persona{PersonaCFO, PersonaInvestor, PersonaBoard}

// ParsePersona matches a persona name case-insensitively. Unknown or empty
// names resolve to CFO with ok=false so callers can log the substitution.
func ParsePersona(s string) (Persona, bool) {
	for _, p := range Personas {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, true
		}
	}
	return PersonaCFO, false
}

// PersonaProfile describes what a persona cares about. Weights are keyed by
// risk category (growth, profitability, liquidity, leverage) and rank
// recommendations; a missing key weighs 1.
type PersonaProfile struct {
	Focus    string             `yaml:"focus" json:"focus"`
	Priority string             `yaml:"priority" json:"priority"`
	Weights  map[string]float64 `yaml:"weights" json:"weights"`
}

// Weight returns the persona's weight for a category.
func (p PersonaProfile) Weight(category string) float64 {
	if w, ok := p.Weights[category]; ok {
		return w
	}
	return 1
}

// DefaultPersonaProfiles returns the built-in persona definitions.
func DefaultPersonaProfiles() map[Persona]PersonaProfile {
	return map[Persona]PersonaProfile{
		PersonaCFO: {
			Focus:    "operational efficiency, cost management, cash flow optimization",
			Priority: "financial health, liquidity, operational metrics",
			Weights:  map[string]float64{"liquidity": 3, "profitability": 2, "leverage": 1.5, "growth": 1},
		},
		PersonaInvestor: {
			Focus:    "growth potential, return on investment, market position",
			Priority: "revenue growth, profitability, competitive advantage",
			Weights:  map[string]float64{"growth": 3, "profitability": 2.5, "leverage": 1.5, "liquidity": 1},
		},
		PersonaBoard: {
			Focus:    "strategic direction, risk management, long-term sustainability",
			Priority: "governance, strategic goals, stakeholder value",
			Weights:  map[string]float64{"leverage": 3, "liquidity": 2.5, "growth": 2, "profitability": 1.5},
		},
	}
}
