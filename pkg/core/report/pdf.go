package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"finstory/pkg/core/pipeline"
)

const (
	pdfFont       = "Arial"
	pdfSize       = 10.0
	pdfLineHeight = 5.0
	pdfPageWidth  = 190.0
)

// RenderPDF lays the Markdown report out on A4 pages.
func RenderPDF(res *pipeline.Result) ([]byte, error) {
	md, err := RenderMarkdown(res)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle(newView(res).Title, true)
	pdf.AddPage()
	pdf.SetFont(pdfFont, "", pdfSize)

	source := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(source))
	r := &pdfRenderer{
		pdf:    pdf,
		source: source,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(doc, r.walk); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
	list   int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfSize)
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(pdfLineHeight, r.tr(s))
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 11.0
			if node.Level == 1 {
				size = 15
			} else if node.Level == 2 {
				size = 12.5
			}
			r.pdf.SetFont(pdfFont, "B", size)
		} else {
			r.pdf.Ln(7)
			r.updateFont()
		}
	case *ast.Paragraph:
		if !entering && r.list == 0 {
			r.pdf.Ln(7)
		}
	case *ast.TextBlock:
		// Tight list items wrap their text in a TextBlock.
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.SoftLineBreak() {
				r.write(" ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case *ast.Blockquote:
		r.italic = entering
		r.updateFont()
	case *ast.List:
		if entering {
			r.list++
		} else {
			r.list--
			if r.list == 0 {
				r.pdf.Ln(7)
			}
		}
	case *ast.ListItem:
		if entering {
			if node.PreviousSibling() != nil {
				r.pdf.Ln(pdfLineHeight)
			}
			r.pdf.SetX(12 + float64(r.list)*4)
			marker := "- "
			if l, ok := node.Parent().(*ast.List); ok && l.IsOrdered() {
				marker = fmt.Sprintf("%d. ", l.Start+indexOf(node))
			}
			r.write(marker)
		}
	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.Line(10, y, 10+pdfPageWidth, y)
			r.pdf.Ln(5)
		}
	case *extast.Table:
		if entering {
			r.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for c := child.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, r.tr(plainText(c, r.source)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	width := pdfPageWidth / float64(len(rows[0]))
	r.pdf.Ln(2)
	for i, row := range rows {
		if i == 0 {
			r.pdf.SetFont(pdfFont, "B", pdfSize-1)
			r.pdf.SetFillColor(230, 230, 230)
		} else {
			r.pdf.SetFont(pdfFont, "", pdfSize-1)
			r.pdf.SetFillColor(255, 255, 255)
		}
		for _, c := range row {
			r.pdf.CellFormat(width, 6, c, "1", 0, "L", i == 0, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.Ln(3)
	r.updateFont()
}

func plainText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func indexOf(n ast.Node) int {
	i := 0
	for p := n.PreviousSibling(); p != nil; p = p.PreviousSibling() {
		i++
	}
	return i
}
