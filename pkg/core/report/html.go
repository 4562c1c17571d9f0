package report

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"finstory/pkg/core/pipeline"
)

// Raw HTML in narrative text is not passed through (goldmark's default).
var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

const page = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 860px; margin: 2rem auto; line-height: 1.5; color: #1f2933; }
table { border-collapse: collapse; }
th, td { border: 1px solid #cbd2d9; padding: 4px 10px; text-align: left; }
blockquote { color: #7b8794; border-left: 3px solid #e4e7eb; margin-left: 0; padding-left: 1rem; }
</style>
</head>
<body>
%s</body>
</html>
`

// RenderHTML renders the Markdown report into a standalone HTML page.
func RenderHTML(res *pipeline.Result) ([]byte, error) {
	md, err := RenderMarkdown(res)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return []byte(fmt.Sprintf(page, html.EscapeString(newView(res).Title), body.String())), nil
}
