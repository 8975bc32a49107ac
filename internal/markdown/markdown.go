// Package markdown parses documents into the structural model the check rules
// and the scanner work on: headings with their anchors, links, images, fenced
// code blocks and raw HTML anchors, each tagged with a 1-based source line.
package markdown

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// LinkKind classifies a link destination.
type LinkKind string

const (
	// LinkExternal is an absolute http or https URL.
	LinkExternal LinkKind = "external"
	// LinkAnchor is a same-document fragment ("#section").
	LinkAnchor LinkKind = "anchor"
	// LinkRelative points at another file in the doc set, optionally with
	// a fragment ("other.md#section").
	LinkRelative LinkKind = "relative"
	// LinkMailto is a mailto: destination or a bare email autolink.
	LinkMailto LinkKind = "mailto"
	// LinkOther is any remaining scheme (ftp:, tel:, ...).
	LinkOther LinkKind = "other"
)

// Heading is one ATX or setext heading.
type Heading struct {
	Level int
	Text  string
	Slug  string
	Line  int
}

// Link is a markdown link, image or autolink.
type Link struct {
	Dest  string
	Text  string
	Kind  LinkKind
	Line  int
	Image bool
}

// CodeBlock is a fenced code block. Lang is empty when the fence carries no
// info string. Line is the line of the opening fence.
type CodeBlock struct {
	Lang    string
	Content string
	Line    int
}

// Anchor is an explicit HTML anchor (<a id>, <a name> or any id attribute)
// embedded in the document.
type Anchor struct {
	ID   string
	Line int
}

// Document is the parsed form of one markdown file.
type Document struct {
	Name        string
	Title       string
	Source      []byte
	Headings    []Heading
	Links       []Link
	CodeBlocks  []CodeBlock
	HTMLAnchors []Anchor
}

var parserMD = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Parse builds the Document model for one file. goldmark never fails on
// malformed input, so structural problems surface as check findings rather
// than parse errors.
func Parse(name string, src []byte) *Document {
	doc := &Document{Name: name, Source: src}
	idx := newLineIndex(src)
	slugger := NewSlugger()

	root := parserMD.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			txt := textOf(v, src)
			h := Heading{
				Level: v.Level,
				Text:  txt,
				Slug:  slugger.Slug(txt),
				Line:  idx.line(nodeOffset(v, src)),
			}
			doc.Headings = append(doc.Headings, h)
			if doc.Title == "" && v.Level == 1 {
				doc.Title = txt
			}
		case *ast.Link:
			dest := string(v.Destination)
			doc.Links = append(doc.Links, Link{
				Dest: dest,
				Text: textOf(v, src),
				Kind: ClassifyDest(dest),
				Line: idx.line(nodeOffset(v, src)),
			})
		case *ast.Image:
			dest := string(v.Destination)
			doc.Links = append(doc.Links, Link{
				Dest:  dest,
				Text:  textOf(v, src),
				Kind:  ClassifyDest(dest),
				Line:  idx.line(nodeOffset(v, src)),
				Image: true,
			})
		case *ast.AutoLink:
			dest := string(v.URL(src))
			kind := ClassifyDest(dest)
			if v.AutoLinkType == ast.AutoLinkEmail {
				kind = LinkMailto
			}
			doc.Links = append(doc.Links, Link{
				Dest: dest,
				Text: string(v.Label(src)),
				Kind: kind,
				Line: idx.line(autoLinkOffset(v, src)),
			})
		case *ast.FencedCodeBlock:
			doc.CodeBlocks = append(doc.CodeBlocks, CodeBlock{
				Lang:    string(v.Language(src)),
				Content: blockContent(v, src),
				Line:    fenceLine(v, src, idx),
			})
		case *ast.HTMLBlock:
			raw := htmlBlockSource(v, src)
			for _, id := range htmlAnchorIDs(raw) {
				doc.HTMLAnchors = append(doc.HTMLAnchors, Anchor{ID: id, Line: idx.line(nodeOffset(v, src))})
			}
		case *ast.RawHTML:
			raw := rawHTMLSource(v, src)
			for _, id := range htmlAnchorIDs(raw) {
				doc.HTMLAnchors = append(doc.HTMLAnchors, Anchor{ID: id, Line: idx.line(nodeOffset(v, src))})
			}
		}
		return ast.WalkContinue, nil
	})

	return doc
}

// AnchorSet returns every fragment the document can be linked to: heading
// slugs plus explicit HTML anchors.
func (d *Document) AnchorSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Headings)+len(d.HTMLAnchors))
	for _, h := range d.Headings {
		set[h.Slug] = struct{}{}
	}
	for _, a := range d.HTMLAnchors {
		set[a.ID] = struct{}{}
	}
	return set
}

// ExternalURLs returns the deduplicated external URLs in document order.
func (d *Document) ExternalURLs() []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, l := range d.Links {
		if l.Kind != LinkExternal {
			continue
		}
		if _, ok := seen[l.Dest]; ok {
			continue
		}
		seen[l.Dest] = struct{}{}
		urls = append(urls, l.Dest)
	}
	return urls
}

// ClassifyDest maps a raw link destination to its kind.
func ClassifyDest(dest string) LinkKind {
	switch {
	case dest == "":
		return LinkOther
	case strings.HasPrefix(dest, "#"):
		return LinkAnchor
	case strings.HasPrefix(dest, "http://"), strings.HasPrefix(dest, "https://"):
		return LinkExternal
	case strings.HasPrefix(dest, "mailto:"):
		return LinkMailto
	}
	// A scheme prefix like "ftp:" or "tel:" marks any remaining absolute
	// destination; "//host" protocol-relative links count as external.
	if strings.HasPrefix(dest, "//") {
		return LinkExternal
	}
	if i := strings.IndexAny(dest, ":/?#"); i >= 0 && dest[i] == ':' {
		return LinkOther
	}
	return LinkRelative
}

// SplitRelative splits a relative destination into its path and fragment
// parts ("other.md#setup" -> "other.md", "setup").
func SplitRelative(dest string) (path, fragment string) {
	if i := strings.IndexByte(dest, '#'); i >= 0 {
		return dest[:i], dest[i+1:]
	}
	return dest, ""
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(src []byte) lineIndex {
	idx := lineIndex{0}
	for i, b := range src {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (li lineIndex) line(offset int) int {
	if offset < 0 {
		return 0
	}
	// First line start greater than offset; the line is the one before it.
	n := sort.Search(len(li), func(i int) bool { return li[i] > offset })
	return n
}

// textOf renders the plain text of a node, dropping inline markup.
func textOf(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// nodeOffset finds a byte offset locating n in the source: the segment of its
// first text descendant, or the first line of the nearest block ancestor.
func nodeOffset(n ast.Node, src []byte) int {
	var off = -1
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			off = t.Segment.Start
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if off >= 0 {
		return off
	}
	for p := n; p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock && p.Lines().Len() > 0 {
			return p.Lines().At(0).Start
		}
	}
	return 0
}

// autoLinkOffset locates an autolink by searching for its raw URL inside the
// enclosing block, since autolink nodes carry no segment of their own.
func autoLinkOffset(v *ast.AutoLink, src []byte) int {
	url := v.URL(src)
	for p := ast.Node(v); p != nil; p = p.Parent() {
		if p.Type() != ast.TypeBlock || p.Lines().Len() == 0 {
			continue
		}
		start := p.Lines().At(0).Start
		end := p.Lines().At(p.Lines().Len() - 1).Stop
		if end > len(src) {
			end = len(src)
		}
		if i := bytes.Index(src[start:end], url); i >= 0 {
			return start + i
		}
		return start
	}
	return 0
}

func blockContent(v *ast.FencedCodeBlock, src []byte) string {
	var buf bytes.Buffer
	for i := 0; i < v.Lines().Len(); i++ {
		seg := v.Lines().At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

// fenceLine returns the line of the opening fence. The info string segment
// sits on the fence line itself; an info-less fence is located one line above
// its first content line.
func fenceLine(v *ast.FencedCodeBlock, src []byte, idx lineIndex) int {
	if v.Info != nil {
		return idx.line(v.Info.Segment.Start)
	}
	if v.Lines().Len() > 0 {
		l := idx.line(v.Lines().At(0).Start)
		if l > 1 {
			return l - 1
		}
		return l
	}
	return 0
}

func htmlBlockSource(v *ast.HTMLBlock, src []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < v.Lines().Len(); i++ {
		seg := v.Lines().At(i)
		buf.Write(seg.Value(src))
	}
	if v.HasClosure() {
		buf.Write(v.ClosureLine.Value(src))
	}
	return buf.Bytes()
}

func rawHTMLSource(v *ast.RawHTML, src []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < v.Segments.Len(); i++ {
		seg := v.Segments.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.Bytes()
}

// htmlAnchorIDs extracts linkable ids from a raw HTML snippet: any id
// attribute, plus name attributes on <a> tags.
func htmlAnchorIDs(raw []byte) []string {
	var ids []string
	tz := html.NewTokenizer(bytes.NewReader(raw))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return ids
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tz.TagName()
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = tz.TagAttr()
			switch {
			case bytes.Equal(key, []byte("id")) && len(val) > 0:
				ids = append(ids, string(val))
			case bytes.Equal(key, []byte("name")) && bytes.Equal(name, []byte("a")) && len(val) > 0:
				ids = append(ids, string(val))
			}
		}
	}
}
