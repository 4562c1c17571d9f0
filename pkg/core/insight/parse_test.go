package insight

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Structured(t *testing.T) {
	raw := `Sure! Here is the analysis:
{
  "key_takeaways": ["Revenue fell 8.33% in Q4", "Net margin held at 17.27%"],
  "strengths": ["Solid margins"],
  "concerns": ["Revenue momentum"],
  "recommendations": ["Review pricing"],
  "summary": "A softer quarter with resilient margins.",
}`
	rec, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "structured", method)
	assert.Equal(t, "A softer quarter with resilient margins.", rec.Summary)
	assert.Len(t, rec.KeyTakeaways, 2)
}

func TestParse_StructuredMissingSummaryFallsBack(t *testing.T) {
	raw := `{"key_takeaways": ["only takeaways here"]}`
	_, _, err := Parse(raw)
	assert.True(t, errors.Is(err, ErrUnparseable))
}

func TestParse_Heuristic(t *testing.T) {
	raw := `Overall the company had a mixed year with slower growth.

## Key Takeaways
- Revenue declined 8.33% quarter over quarter
- Net margin remained healthy at 17.27%

## Key Risks
1. Revenue momentum is weakening into year end
2. Customer concentration remains elevated

## Recommendations
* Reprice the lower-margin product lines this quarter

## Summary
A softer quarter, but profitability held up.`

	rec, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", method)
	assert.Equal(t, []string{
		"Revenue declined 8.33% quarter over quarter",
		"Net margin remained healthy at 17.27%",
	}, rec.KeyTakeaways)
	assert.Len(t, rec.Concerns, 2)
	assert.Equal(t, []string{"Reprice the lower-margin product lines this quarter"}, rec.Recommendations)
	assert.Equal(t, "A softer quarter, but profitability held up.", rec.Summary)
}

func TestParse_LongPreambleKeepsWholeRunes(t *testing.T) {
	raw := strings.Repeat("Résumé ", 100) + "\n\n## Key Takeaways\n- Revenue declined 8.33% versus Q3\n"

	rec, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", method)
	assert.True(t, utf8.ValidString(rec.Summary))
	assert.Equal(t, 500, utf8.RuneCountInString(rec.Summary))
	assert.True(t, strings.HasSuffix(rec.Summary, "Rés"), rec.Summary[len(rec.Summary)-12:])
}

func TestParse_HTML(t *testing.T) {
	raw := `<html><body>
<h2>Key Takeaways</h2>
<ul><li>Revenue declined 8.33% versus Q3</li><li>Margins were stable overall</li></ul>
<h2>Summary</h2>
<p>Softer top line, steady profitability.</p>
</body></html>`

	rec, method, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "heuristic", method)
	assert.Equal(t, []string{"Revenue declined 8.33% versus Q3", "Margins were stable overall"}, rec.KeyTakeaways)
	assert.Equal(t, "Softer top line, steady profitability.", rec.Summary)
}

func TestParse_Empty(t *testing.T) {
	_, _, err := Parse("   ")
	assert.True(t, errors.Is(err, ErrUnparseable))
}

func TestRecordNormalize(t *testing.T) {
	rec := Record{
		KeyTakeaways: []string{"  one ", "", "One", "two", "three", "four", "five", "six"},
	}.Normalize()
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, rec.KeyTakeaways)
	assert.Equal(t, "one", rec.Summary)
	assert.NotNil(t, rec.Strengths)
	assert.NotNil(t, rec.Concerns)
	assert.NotNil(t, rec.Recommendations)
}
