package checks

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/report"
)

// anchorRule verifies that fragment links resolve: "#section" against the
// document's own anchors, "other.md#section" against the target document,
// and that relative targets exist in the source at all.
type anchorRule struct{}

func (anchorRule) Name() string { return RuleAnchorResolves }

func (anchorRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	var findings []report.Finding
	own := doc.AnchorSet()

	for _, l := range doc.Links {
		switch l.Kind {
		case markdown.LinkAnchor:
			frag := normalizeFragment(strings.TrimPrefix(l.Dest, "#"))
			if _, ok := own[frag]; !ok {
				findings = append(findings, report.Finding{
					Rule:     RuleAnchorResolves,
					Severity: report.SeverityError,
					Doc:      doc.Name,
					Line:     l.Line,
					Message:  fmt.Sprintf("anchor #%s not found in this document", frag),
					Detail:   nearestAnchor(frag, own),
				})
			}
		case markdown.LinkRelative:
			rel, frag := markdown.SplitRelative(l.Dest)
			target := resolveRelative(doc, rel)
			targetDoc, isDoc := ctx.Docs[target]
			if !isDoc {
				if _, exists := ctx.Files[target]; !exists {
					findings = append(findings, report.Finding{
						Rule:     RuleAnchorResolves,
						Severity: report.SeverityError,
						Doc:      doc.Name,
						Line:     l.Line,
						Message:  fmt.Sprintf("linked file %s does not exist", target),
					})
				} else if frag != "" {
					findings = append(findings, report.Finding{
						Rule:     RuleAnchorResolves,
						Severity: report.SeverityWarning,
						Doc:      doc.Name,
						Line:     l.Line,
						Message:  fmt.Sprintf("cannot verify fragment #%s on non-markdown file %s", frag, target),
					})
				}
				continue
			}
			if frag == "" {
				continue
			}
			frag = normalizeFragment(frag)
			if _, ok := targetDoc.AnchorSet()[frag]; !ok {
				findings = append(findings, report.Finding{
					Rule:     RuleAnchorResolves,
					Severity: report.SeverityError,
					Doc:      doc.Name,
					Line:     l.Line,
					Message:  fmt.Sprintf("anchor #%s not found in %s", frag, target),
				})
			}
		}
	}
	return findings
}

// normalizeFragment undoes percent-encoding so "#step%203" matches "step 3"
// derived anchors.
func normalizeFragment(frag string) string {
	if u, err := url.PathUnescape(frag); err == nil {
		return u
	}
	return frag
}

// nearestAnchor suggests an existing anchor differing only in case, the most
// common authoring mistake.
func nearestAnchor(frag string, anchors map[string]struct{}) string {
	lower := strings.ToLower(frag)
	for a := range anchors {
		if strings.ToLower(a) == lower {
			return fmt.Sprintf("did you mean #%s?", a)
		}
	}
	return ""
}

// tocRule verifies the table of contents stays in sync with the document:
// every level-2 heading after the contents section must be listed in it, and
// the listing must follow document order.
type tocRule struct{}

func (tocRule) Name() string { return RuleTOCSync }

func (tocRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	tocIdx := tocHeadingIndex(doc)
	if tocIdx < 0 {
		return nil
	}
	toc := doc.Headings[tocIdx]

	// The contents section ends at the next heading of the same or higher
	// level; its entries are the anchor links between those lines.
	endLine := math.MaxInt
	for _, h := range doc.Headings[tocIdx+1:] {
		if h.Level <= toc.Level {
			endLine = h.Line
			break
		}
	}
	listed := make(map[string]struct{})
	var tocOrder []string
	for _, l := range doc.Links {
		if l.Kind != markdown.LinkAnchor || l.Line <= toc.Line || l.Line >= endLine {
			continue
		}
		frag := normalizeFragment(strings.TrimPrefix(l.Dest, "#"))
		listed[frag] = struct{}{}
		tocOrder = append(tocOrder, frag)
	}

	var findings []report.Finding
	var sections []markdown.Heading
	for _, h := range doc.Headings {
		if h.Level != 2 || h.Line < endLine {
			continue
		}
		sections = append(sections, h)
		if _, ok := listed[h.Slug]; !ok {
			findings = append(findings, report.Finding{
				Rule:     RuleTOCSync,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     h.Line,
				Message:  fmt.Sprintf("heading %q is missing from the table of contents", h.Text),
			})
		}
	}
	if len(findings) > 0 {
		return findings
	}

	// With every section listed, the listing must also follow document
	// order. Report only the first entry out of place; a single moved
	// section would otherwise flag everything after it.
	position := make(map[string]int, len(sections))
	for i, h := range sections {
		position[h.Slug] = i
	}
	prev := -1
	for _, frag := range tocOrder {
		idx, ok := position[frag]
		if !ok {
			continue
		}
		if idx < prev {
			findings = append(findings, report.Finding{
				Rule:     RuleTOCSync,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     toc.Line,
				Message:  fmt.Sprintf("table of contents lists %q out of document order", sections[idx].Text),
			})
			break
		}
		if idx > prev {
			prev = idx
		}
	}
	return findings
}

// tocHeadingIndex finds the contents heading, or -1.
func tocHeadingIndex(doc *markdown.Document) int {
	for i, h := range doc.Headings {
		switch strings.ToLower(strings.TrimSpace(h.Text)) {
		case "table of contents", "contents", "toc":
			return i
		}
	}
	return -1
}
