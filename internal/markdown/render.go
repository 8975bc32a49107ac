package markdown

import (
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var rendererMD = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// slugIDs plugs the document slugger into goldmark's heading ID generation,
// so rendered pages carry the same anchors the anchor checks validate.
type slugIDs struct {
	s *Slugger
}

func (ids *slugIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	return []byte(ids.s.Slug(string(value)))
}

func (ids *slugIDs) Put(value []byte) {}

// RenderHTML converts markdown to an HTML fragment. Heading IDs use the same
// slug algorithm as Parse, so in-page fragment links keep working.
func RenderHTML(w io.Writer, src []byte) error {
	ctx := parser.NewContext(parser.WithIDs(&slugIDs{s: NewSlugger()}))
	return rendererMD.Convert(src, w, parser.WithContext(ctx))
}
