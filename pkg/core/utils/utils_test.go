package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Summary string   `json:"summary" validate:"required"`
	Items   []string `json:"items"`
}

func TestSmartParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain json", `{"summary":"ok","items":["a"]}`},
		{"fenced json", "```json\n{\"summary\":\"ok\",\"items\":[\"a\"]}\n```"},
		{"wrapped in prose", "Here you go:\n{\"summary\":\"ok\",\"items\":[\"a\"]}\nThanks!"},
		{"trailing comma", `{"summary":"ok","items":["a",],}`},
		{"single quotes", `{'summary':'ok','items':['a']}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			_, err := SmartParse(tt.input, &p)
			require.NoError(t, err)
			assert.Equal(t, "ok", p.Summary)
			assert.Equal(t, []string{"a"}, p.Items)
		})
	}
}

func TestValidateJSON(t *testing.T) {
	var p payload
	assert.NoError(t, ValidateJSON(`{"summary":"x"}`, &p))

	var empty payload
	err := ValidateJSON(`{"items":["a"]}`, &empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON_SCHEMA_VIOLATION")

	assert.Error(t, ValidateJSON(`not json`, &empty))
}

func TestExtractJSONObject(t *testing.T) {
	obj, err := ExtractJSONObject(`prefix {"a":{"b":1}} suffix`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":1}}`, obj)

	_, err = ExtractJSONObject("no braces here")
	assert.ErrorIs(t, err, ErrNoJSONObject)
}

func TestCleanMarkdown(t *testing.T) {
	assert.Equal(t, "# Title", CleanMarkdown("```markdown\n# Title\n```"))
	assert.Equal(t, `{"a":1}`, CleanMarkdown("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanMarkdown("```{\"a\":1}```"))
	assert.Equal(t, "plain", CleanMarkdown("  plain  "))
}

func TestValidateMarkdown(t *testing.T) {
	assert.True(t, ValidateMarkdown("# Heading\n\nBody"))
	assert.False(t, ValidateMarkdown("   "))
}

func TestMarkdownListItems(t *testing.T) {
	md := "Intro line\n\n- first point\n- second point\n  continues here\n\n1. numbered one\n2. numbered two\n"
	assert.Equal(t, []string{
		"first point",
		"second point continues here",
		"numbered one",
		"numbered two",
	}, MarkdownListItems(md))
	assert.Empty(t, MarkdownListItems("no lists at all"))
}
