package utils

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CleanMarkdown strips an outer fenced code block (```json, ```markdown or a
// bare fence) so the payload inside can be parsed or rendered.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}

	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	// Drop the info string (e.g. "json") on the opening fence line.
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[") {
		cleaned = cleaned[nl+1:]
	}
	return strings.TrimSpace(cleaned)
}

// ValidateMarkdown reports whether the input parses to a document with at
// least one block. Goldmark accepts almost anything, so this only rejects
// empty or whitespace-only text.
func ValidateMarkdown(input string) bool {
	parser := goldmark.DefaultParser()
	reader := text.NewReader([]byte(input))
	doc := parser.Parse(reader)
	return doc != nil && doc.HasChildren()
}

// MarkdownListItems returns the text of every list item in a Markdown
// document, in order.
func MarkdownListItems(input string) []string {
	src := []byte(input)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var items []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindListItem {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Kind() == ast.KindList {
				continue
			}
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimSpace(string(seg.Value(src)))
				if line == "" {
					continue
				}
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(line)
			}
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			items = append(items, s)
		}
		return ast.WalkContinue, nil
	})
	return items
}
