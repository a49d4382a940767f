// Package pipeline renders processed markdown to standalone HTML pages.
//
// Math spans have already been replaced with <img> references or inline SVG
// by the latexmath service before this stage runs; this package only handles
// the surrounding markdown.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrHTMLConversion indicates HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// htmlTemplate wraps goldmark's fragment output in a complete HTML5 document.
// The img/svg color inheritance relies on currentColor, so the page gets an
// explicit color on body for the SVGs to inherit.
const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body { color: #1a1a1a; }</style>
</head>
<body>
%s
</body>
</html>`

// HTMLRenderer converts processed markdown to HTML using goldmark (pure Go).
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer creates an HTMLRenderer with GFM extensions and syntax
// highlighting.
func NewHTMLRenderer() *HTMLRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM, // Tables, strikethrough, autolinks, task lists
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true), // CSS classes for external stylesheet control
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			// WithUnsafe is required: the substituted math markup is raw
			// HTML (<img>, inline <svg>) that must pass through verbatim.
			// Input is local build-time documents, not untrusted content.
			html.WithUnsafe(),
		),
	)
	return &HTMLRenderer{md: md}
}

// ToHTML converts markdown content to a standalone HTML5 page. Supports
// context cancellation via goroutine + select pattern since goldmark doesn't
// natively support context.
func (r *HTMLRenderer) ToHTML(ctx context.Context, title, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: fmt.Sprintf(htmlTemplate, title, buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.html, res.err
	}
}
