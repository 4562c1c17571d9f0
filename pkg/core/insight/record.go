// Package insight turns a metrics bundle into a persona-tailored narrative,
// either through an external text generator or a local template.
package insight

import (
	"strings"
)

// MaxTakeaways caps the key takeaways kept from any source.
const MaxTakeaways = 5

// Source names where a record came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceTemplate Source = "template"
)

// Record is the narrative for one run. Slices are never nil and Summary is
// never empty once a record has been through Normalize.
type Record struct {
	KeyTakeaways    []string `json:"key_takeaways"`
	Strengths       []string `json:"strengths"`
	Concerns        []string `json:"concerns"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

// Normalize trims entries, drops blanks and duplicates, caps the takeaways and
// fills a missing summary from the first takeaway.
func (r Record) Normalize() Record {
	out := Record{
		KeyTakeaways:    cleanList(r.KeyTakeaways),
		Strengths:       cleanList(r.Strengths),
		Concerns:        cleanList(r.Concerns),
		Recommendations: cleanList(r.Recommendations),
		Summary:         strings.Join(strings.Fields(r.Summary), " "),
	}
	if len(out.KeyTakeaways) > MaxTakeaways {
		out.KeyTakeaways = out.KeyTakeaways[:MaxTakeaways]
	}
	if out.Summary == "" && len(out.KeyTakeaways) > 0 {
		out.Summary = out.KeyTakeaways[0]
	}
	return out
}

// Empty reports whether the record carries no content at all.
func (r Record) Empty() bool {
	return r.Summary == "" && len(r.KeyTakeaways) == 0 && len(r.Strengths) == 0 &&
		len(r.Concerns) == 0 && len(r.Recommendations) == 0
}

// Outcome is what the generator hands back: the record plus how it was made.
type Outcome struct {
	Record   Record `json:"record"`
	Source   Source `json:"source"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
