package insight

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"finstory/pkg/core/utils"
)

// ErrUnparseable is returned when neither structured nor heuristic parsing
// yields a usable record.
var ErrUnparseable = errors.New("response could not be parsed into insights")

// structuredRecord is the JSON shape requested from the model.
type structuredRecord struct {
	KeyTakeaways    []string `json:"key_takeaways"`
	Strengths       []string `json:"strengths"`
	Concerns        []string `json:"concerns"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary" validate:"required"`
}

// Parse turns a raw model response into a Record. It normalizes the text,
// tries structured JSON extraction and falls back to section-keyword bullet
// extraction. The second return value names the method that succeeded,
// "structured" or "heuristic".
func Parse(raw string) (Record, string, error) {
	text := normalizeResponse(raw)
	if strings.TrimSpace(text) == "" {
		return Record{}, "", fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	if _, err := utils.ExtractJSONObject(text); err == nil {
		if rec, ok := parseStructured(text); ok {
			return rec, "structured", nil
		}
	}

	rec := parseHeuristic(text).Normalize()
	if rec.Summary == "" || (len(rec.KeyTakeaways) == 0 && len(rec.Concerns) == 0 && len(rec.Strengths) == 0) {
		return Record{}, "", fmt.Errorf("%w: no sections or bullets found", ErrUnparseable)
	}
	return rec, "heuristic", nil
}

func parseStructured(text string) (Record, bool) {
	var sr structuredRecord
	if _, err := utils.SmartParse(text, &sr); err != nil {
		return Record{}, false
	}
	if err := utils.ValidateStruct(&sr); err != nil {
		return Record{}, false
	}
	rec := Record{
		KeyTakeaways:    sr.KeyTakeaways,
		Strengths:       sr.Strengths,
		Concerns:        sr.Concerns,
		Recommendations: sr.Recommendations,
		Summary:         sr.Summary,
	}.Normalize()
	return rec, rec.Summary != ""
}

var htmlTag = regexp.MustCompile(`(?i)<(p|div|ul|ol|li|h[1-6]|br|html|body)[\s>/]`)

// normalizeResponse strips code fences and flattens HTML to Markdown-like text.
func normalizeResponse(raw string) string {
	text := utils.CleanMarkdown(raw)
	if !htmlTag.MatchString(text) {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, sel *goquery.Selection) {
		node := goquery.NodeName(sel)
		if node == "p" && sel.ParentsFiltered("li").Length() > 0 {
			return
		}
		content := strings.Join(strings.Fields(sel.Text()), " ")
		if content == "" {
			return
		}
		switch node {
		case "li":
			lines = append(lines, "- "+content)
		case "p":
			lines = append(lines, "", content, "")
		default:
			lines = append(lines, "", "## "+content, "")
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type section int

const (
	sectionNone section = iota
	sectionTakeaways
	sectionStrengths
	sectionConcerns
	sectionRecommendations
	sectionSummary
)

var sectionPatterns = []struct {
	section section
	re      *regexp.Regexp
}{
	// "Key risks" is a concerns heading, so the generic takeaway words go last.
	{sectionStrengths, regexp.MustCompile(`(?i)(strength|positive)`)},
	{sectionConcerns, regexp.MustCompile(`(?i)(concern|risk|issue|problem|weakness)`)},
	{sectionRecommendations, regexp.MustCompile(`(?i)(recommend|suggest|action)`)},
	{sectionSummary, regexp.MustCompile(`(?i)(summary|overview|conclusion)`)},
	{sectionTakeaways, regexp.MustCompile(`(?i)(key|takeaway|insight|highlight)`)},
}

var bulletLine = regexp.MustCompile(`^\s*([-*+•]|\d+[.)])\s+`)

// isHeading reports whether a line introduces a section rather than content.
func isHeading(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || bulletLine.MatchString(t) {
		return false
	}
	return strings.HasPrefix(t, "#") || strings.HasSuffix(t, ":") ||
		(strings.HasPrefix(t, "**") && strings.HasSuffix(t, "**")) || len(strings.Fields(t)) <= 4
}

func classifyHeading(line string) section {
	for _, p := range sectionPatterns {
		if p.re.MatchString(line) {
			return p.section
		}
	}
	return sectionNone
}

// maxPreambleSummary caps, in runes, a summary taken from the preamble.
const maxPreambleSummary = 500

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// parseHeuristic splits the text into keyword sections and pulls the list
// items of each one out with the Markdown parser.
func parseHeuristic(text string) Record {
	bodies := map[section][]string{}
	current := sectionNone
	var preamble []string

	for _, line := range strings.Split(text, "\n") {
		if isHeading(line) {
			if s := classifyHeading(line); s != sectionNone {
				current = s
				continue
			}
		}
		if current == sectionNone {
			preamble = append(preamble, line)
			continue
		}
		bodies[current] = append(bodies[current], line)
	}

	items := func(s section) []string {
		var out []string
		for _, item := range utils.MarkdownListItems(strings.Join(bodies[s], "\n")) {
			item = strings.Trim(item, "*_ ")
			if len(item) > 10 {
				out = append(out, item)
			}
		}
		return out
	}

	rec := Record{
		KeyTakeaways:    items(sectionTakeaways),
		Strengths:       items(sectionStrengths),
		Concerns:        items(sectionConcerns),
		Recommendations: items(sectionRecommendations),
	}

	var summary []string
	for _, line := range bodies[sectionSummary] {
		if t := strings.TrimSpace(line); t != "" && !bulletLine.MatchString(t) {
			summary = append(summary, t)
		}
	}
	rec.Summary = strings.Join(summary, " ")

	// First paragraph before any section stands in for a missing summary.
	if rec.Summary == "" {
		for _, para := range strings.Split(strings.Join(preamble, "\n"), "\n\n") {
			if p := strings.TrimSpace(para); len(p) > 20 && !bulletLine.MatchString(p) {
				rec.Summary = truncateRunes(p, maxPreambleSummary)
				break
			}
		}
	}
	return rec
}
