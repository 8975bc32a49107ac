package markdown

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleDoc = `# Deploy Guide

Intro with an [inline link](https://example.com/docs) and <https://auto.example.com/x>.

## Setup

See [the schema section](#setup) and [other doc](prisma.md#models).

<a id="legacy-anchor"></a>

## Setup

` + "```prisma" + `
datasource db {
  provider = "postgresql"
}
` + "```" + `

![diagram](https://img.example.com/d.png)

Contact <team@example.com> or [mail us](mailto:team@example.com).
`

// TestParseHeadings verifies heading extraction, slug dedup and line numbers.
func TestParseHeadings(t *testing.T) {
	doc := Parse("guide.md", []byte(sampleDoc))

	if doc.Title != "Deploy Guide" {
		t.Errorf("Title = %q, want %q", doc.Title, "Deploy Guide")
	}
	if len(doc.Headings) != 3 {
		t.Fatalf("got %d headings, want 3", len(doc.Headings))
	}

	tests := []struct {
		idx      int
		wantSlug string
		wantLine int
	}{
		{idx: 0, wantSlug: "deploy-guide", wantLine: 1},
		{idx: 1, wantSlug: "setup", wantLine: 5},
		{idx: 2, wantSlug: "setup-1", wantLine: 11},
	}
	for _, tt := range tests {
		h := doc.Headings[tt.idx]
		if h.Slug != tt.wantSlug {
			t.Errorf("heading %d slug = %q, want %q", tt.idx, h.Slug, tt.wantSlug)
		}
		if h.Line != tt.wantLine {
			t.Errorf("heading %d (%q) line = %d, want %d", tt.idx, h.Text, h.Line, tt.wantLine)
		}
	}
}

// TestParseLinks verifies link classification across kinds.
func TestParseLinks(t *testing.T) {
	doc := Parse("guide.md", []byte(sampleDoc))

	byDest := make(map[string]Link)
	for _, l := range doc.Links {
		byDest[l.Dest] = l
	}

	tests := []struct {
		dest      string
		wantKind  LinkKind
		wantImage bool
	}{
		{dest: "https://example.com/docs", wantKind: LinkExternal},
		{dest: "https://auto.example.com/x", wantKind: LinkExternal},
		{dest: "#setup", wantKind: LinkAnchor},
		{dest: "prisma.md#models", wantKind: LinkRelative},
		{dest: "https://img.example.com/d.png", wantKind: LinkExternal, wantImage: true},
		{dest: "mailto:team@example.com", wantKind: LinkMailto},
	}
	for _, tt := range tests {
		l, ok := byDest[tt.dest]
		if !ok {
			t.Errorf("link %q not found in parsed document", tt.dest)
			continue
		}
		if l.Kind != tt.wantKind {
			t.Errorf("link %q kind = %q, want %q", tt.dest, l.Kind, tt.wantKind)
		}
		if l.Image != tt.wantImage {
			t.Errorf("link %q image = %v, want %v", tt.dest, l.Image, tt.wantImage)
		}
		if l.Line == 0 {
			t.Errorf("link %q has no line number", tt.dest)
		}
	}
}

// TestParseCodeBlocks verifies fence language and content extraction.
func TestParseCodeBlocks(t *testing.T) {
	doc := Parse("guide.md", []byte(sampleDoc))

	if len(doc.CodeBlocks) != 1 {
		t.Fatalf("got %d code blocks, want 1", len(doc.CodeBlocks))
	}
	cb := doc.CodeBlocks[0]
	if cb.Lang != "prisma" {
		t.Errorf("Lang = %q, want %q", cb.Lang, "prisma")
	}
	if !strings.Contains(cb.Content, `provider = "postgresql"`) {
		t.Errorf("Content missing fence body:\n%s", cb.Content)
	}
	if cb.Line != 13 {
		t.Errorf("Line = %d, want 13", cb.Line)
	}
}

// TestAnchorSet verifies heading slugs and HTML anchors are both linkable.
func TestAnchorSet(t *testing.T) {
	doc := Parse("guide.md", []byte(sampleDoc))
	set := doc.AnchorSet()

	for _, want := range []string{"deploy-guide", "setup", "setup-1", "legacy-anchor"} {
		if _, ok := set[want]; !ok {
			t.Errorf("AnchorSet missing %q (have %v)", want, set)
		}
	}
}

// TestExternalURLs verifies deduplication and ordering.
func TestExternalURLs(t *testing.T) {
	src := []byte("[a](https://example.com/a) [b](https://example.com/b) [a again](https://example.com/a)\n")
	doc := Parse("d.md", src)

	got := doc.ExternalURLs()
	want := []string{"https://example.com/a", "https://example.com/b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExternalURLs() mismatch (-want +got):\n%s", diff)
	}
}

// TestClassifyDest verifies destination classification edge cases.
func TestClassifyDest(t *testing.T) {
	tests := []struct {
		dest string
		want LinkKind
	}{
		{dest: "https://example.com", want: LinkExternal},
		{dest: "http://example.com", want: LinkExternal},
		{dest: "//cdn.example.com/x.js", want: LinkExternal},
		{dest: "#fragment", want: LinkAnchor},
		{dest: "other.md", want: LinkRelative},
		{dest: "sub/dir/file.md#x", want: LinkRelative},
		{dest: "mailto:x@example.com", want: LinkMailto},
		{dest: "ftp://example.com/f", want: LinkOther},
		{dest: "tel:+15551234567", want: LinkOther},
		{dest: "", want: LinkOther},
	}
	for _, tt := range tests {
		if got := ClassifyDest(tt.dest); got != tt.want {
			t.Errorf("ClassifyDest(%q) = %q, want %q", tt.dest, got, tt.want)
		}
	}
}

// TestSplitRelative verifies path/fragment splitting.
func TestSplitRelative(t *testing.T) {
	path, frag := SplitRelative("other.md#setup")
	if path != "other.md" || frag != "setup" {
		t.Errorf("SplitRelative = (%q, %q), want (other.md, setup)", path, frag)
	}
	path, frag = SplitRelative("plain.md")
	if path != "plain.md" || frag != "" {
		t.Errorf("SplitRelative = (%q, %q), want (plain.md, \"\")", path, frag)
	}
}
