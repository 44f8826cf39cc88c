// Package markdown renders documents to HTML and plain text and
// summarizes their structure for previews.
package markdown

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

func newParser() *parser.Parser {
	ext := parser.CommonExtensions | parser.Attributes
	return parser.NewWithExtensions(ext)
}

func ToHTML(md []byte) string {
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	}
	renderer := html.NewRenderer(opts)
	doc := newParser().Parse(md)
	return string(markdown.Render(doc, renderer))
}

// ToHTMLDocument wraps the rendered fragment in a standalone page, for
// the translate command's --html artifact.
func ToHTMLDocument(md []byte, title string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", stdhtml.EscapeString(title))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(ToHTML(md))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func ToPlainText(md []byte) string {
	htmlContent := ToHTML(md)
	return StripHTMLTags(htmlContent)
}

func StripHTMLTags(htmlContent string) string {
	var result bytes.Buffer
	inTag := false

	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				result.WriteRune(ch)
			}
		}
	}

	return result.String()
}

// DocumentStats counts the structures a translation run needs to
// preserve, shown by dry runs and split previews.
type DocumentStats struct {
	Headings   int
	CodeBlocks int
	Links      int
	Images     int
	Tables     int
	ListItems  int
}

// Stats parses md and tallies its structural elements.
func Stats(md []byte) DocumentStats {
	doc := newParser().Parse(md)

	var stats DocumentStats
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node.(type) {
		case *ast.Heading:
			stats.Headings++
		case *ast.CodeBlock:
			stats.CodeBlocks++
		case *ast.Link:
			stats.Links++
		case *ast.Image:
			stats.Images++
		case *ast.Table:
			stats.Tables++
		case *ast.ListItem:
			stats.ListItems++
		}
		return ast.GoToNext
	})
	return stats
}
