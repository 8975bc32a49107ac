package markdown

import (
	"bytes"
	"strings"
	"testing"
)

// TestRenderHTML verifies rendered headings carry the same anchors Parse computes.
func TestRenderHTML(t *testing.T) {
	src := []byte("# Deploy Guide\n\n## Setup\n\n## Setup\n\nBody with [link](#setup-1).\n")

	var buf bytes.Buffer
	if err := RenderHTML(&buf, src); err != nil {
		t.Fatalf("RenderHTML returned error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`id="deploy-guide"`,
		`id="setup"`,
		`id="setup-1"`,
		`href="#setup-1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered HTML missing %s:\n%s", want, out)
		}
	}
}

// TestRenderHTMLTable verifies GFM tables render as HTML tables.
func TestRenderHTMLTable(t *testing.T) {
	src := []byte("| Error | Fix |\n| --- | --- |\n| P1001 | check DATABASE_URL |\n")

	var buf bytes.Buffer
	if err := RenderHTML(&buf, src); err != nil {
		t.Fatalf("RenderHTML returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "<table>") {
		t.Errorf("rendered HTML missing <table>:\n%s", buf.String())
	}
}
