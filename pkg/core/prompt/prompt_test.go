package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finstory/pkg/models"
)

func TestDefaultRegistry_HasPersonaPrompts(t *testing.T) {
	r := NewDefaultRegistry()
	for _, p := range models.Personas {
		pt, err := r.GetPrompt(InsightPromptID(p))
		require.NoError(t, err, p)
		assert.Contains(t, pt.SystemPrompt, string(p))
		assert.NotContains(t, pt.SystemPrompt, "{{")
	}
	assert.Len(t, r.ListByCategory(CategoryInsight), 3)
	assert.Equal(t, "insight.investor", InsightPromptID(models.PersonaInvestor))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewDefaultRegistry()
	b := NewRegistry()
	require.NoError(t, b.Register(&PromptTemplate{ID: "x"}))
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, 3, a.Count())
	assert.Error(t, b.Register(&PromptTemplate{}))
}

func TestRenderUserPrompt(t *testing.T) {
	pt, err := NewDefaultRegistry().GetPrompt(InsightPromptID(models.PersonaCFO))
	require.NoError(t, err)

	ctx := NewContext().
		Set("Metrics", "revenue_metrics.growth_rate: -8.33").
		Set("Periods", 4).
		Set("LatestLabel", "Q4").
		Set("Assumptions", []string{"capex_assumed_zero"})
	out, err := RenderUserPrompt(pt, ctx)
	require.NoError(t, err)

	assert.Contains(t, out, "revenue_metrics.growth_rate: -8.33")
	assert.Contains(t, out, "latest period Q4")
	assert.Contains(t, out, "Assumptions applied: capex_assumed_zero")
	assert.Contains(t, out, "Cash flow optimization")
	assert.Contains(t, out, `"key_takeaways"`)
}

func TestRenderUserPrompt_RequiredVariable(t *testing.T) {
	pt, _ := NewDefaultRegistry().GetPrompt(InsightPromptID(models.PersonaBoard))
	_, err := RenderUserPrompt(pt, NewContext())
	assert.Error(t, err)
}

func TestLoadFromDirectory_Overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "insight"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "insight", "CFO.json"),
		[]byte(`{"system_prompt":"custom cfo","user_prompt_template":"{{.Metrics}}"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	r := NewDefaultRegistry()
	n, err := LoadFromDirectory(r, dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pt, err := r.GetPrompt("insight.cfo")
	require.NoError(t, err)
	assert.Equal(t, "custom cfo", pt.SystemPrompt)
	assert.Equal(t, CategoryInsight, pt.Category)
}

func TestLoadFromDirectory_MissingAndBroken(t *testing.T) {
	r := NewDefaultRegistry()
	n, err := LoadFromDirectory(r, filepath.Join(t.TempDir(), "absent"), zerolog.Nop())
	assert.NoError(t, err)
	assert.Zero(t, n)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	_, err = LoadFromDirectory(r, dir, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad.json"))
}
