// Package markdown renders post previews and imports posts written with a
// front matter header.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// engine is stateless and safe for concurrent use.
var engine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// unsafeEngine also emits raw HTML blocks.
var unsafeEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.TaskList),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Render converts Markdown to HTML. Raw HTML in the source is omitted.
func Render(src []byte) ([]byte, error) {
	return convert(engine, src)
}

// RenderUnsafe converts Markdown to HTML keeping raw HTML. Only use it on
// trusted input.
func RenderUnsafe(src []byte) ([]byte, error) {
	return convert(unsafeEngine, src)
}

func convert(md goldmark.Markdown, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("markdown render: %w", err)
	}
	return buf.Bytes(), nil
}
