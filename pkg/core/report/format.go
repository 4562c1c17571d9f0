package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"finstory/pkg/core/pipeline"
)

// Format is an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts the format names and the "md" shorthand. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, markdown, html or pdf)", s)
}

// ContentType is the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Render renders res in the given format.
func Render(res *pipeline.Result, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		md, err := RenderMarkdown(res)
		return []byte(md), err
	case FormatHTML:
		return RenderHTML(res)
	case FormatPDF:
		return RenderPDF(res)
	case FormatJSON, "":
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render json: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown format %q", f)
}
