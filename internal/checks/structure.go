package checks

import (
	"fmt"
	"strings"

	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/report"
)

// structureRule checks heading shape: a single H1 at the top and no skipped
// levels on the way down.
type structureRule struct{}

func (structureRule) Name() string { return RuleHeadingStructure }

func (structureRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	var findings []report.Finding

	var h1 []markdown.Heading
	for _, h := range doc.Headings {
		if h.Level == 1 {
			h1 = append(h1, h)
		}
	}
	switch {
	case len(h1) == 0:
		findings = append(findings, report.Finding{
			Rule:     RuleHeadingStructure,
			Severity: report.SeverityWarning,
			Doc:      doc.Name,
			Line:     1,
			Message:  "document has no top-level heading",
		})
	case len(h1) > 1:
		for _, h := range h1[1:] {
			findings = append(findings, report.Finding{
				Rule:     RuleHeadingStructure,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     h.Line,
				Message:  fmt.Sprintf("extra top-level heading %q (one per document)", h.Text),
			})
		}
	}

	prev := 0
	for _, h := range doc.Headings {
		if prev > 0 && h.Level > prev+1 {
			findings = append(findings, report.Finding{
				Rule:     RuleHeadingStructure,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     h.Line,
				Message:  fmt.Sprintf("heading level jumps from %d to %d at %q", prev, h.Level, h.Text),
			})
		}
		prev = h.Level
	}
	return findings
}

// sectionsRule checks that configured section headings exist. Matching is
// case-insensitive on the heading text.
type sectionsRule struct{}

func (sectionsRule) Name() string { return RuleRequiredSections }

func (sectionsRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	if len(ctx.Config.RequiredSections) == 0 {
		return nil
	}

	have := make(map[string]struct{}, len(doc.Headings))
	for _, h := range doc.Headings {
		have[strings.ToLower(strings.TrimSpace(h.Text))] = struct{}{}
	}

	var findings []report.Finding
	for _, want := range ctx.Config.RequiredSections {
		if _, ok := have[strings.ToLower(strings.TrimSpace(want))]; !ok {
			findings = append(findings, report.Finding{
				Rule:     RuleRequiredSections,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Message:  fmt.Sprintf("required section %q is missing", want),
			})
		}
	}
	return findings
}

// genericLinkText flags link texts that say nothing about the target.
var genericLinkText = map[string]struct{}{
	"here":       {},
	"click here": {},
	"this":       {},
	"this link":  {},
	"link":       {},
	"read more":  {},
}

// linkStyleRule nudges toward descriptive link text: bare URLs and "click
// here" style links read badly and copy badly. Links with no text at all and
// images with no alt text rank as warnings, since screen readers have
// nothing to announce for them.
type linkStyleRule struct{}

func (linkStyleRule) Name() string { return RuleLinkStyle }

func (linkStyleRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	var findings []report.Finding
	for _, l := range doc.Links {
		if l.Kind == markdown.LinkMailto {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(l.Text))
		if l.Image {
			if text == "" {
				findings = append(findings, report.Finding{
					Rule:     RuleLinkStyle,
					Severity: report.SeverityWarning,
					Doc:      doc.Name,
					Line:     l.Line,
					Message:  "image has no alt text",
				})
			}
			continue
		}
		if text == "" {
			findings = append(findings, report.Finding{
				Rule:     RuleLinkStyle,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     l.Line,
				Message:  "link has no text",
			})
			continue
		}
		if _, ok := genericLinkText[text]; ok {
			findings = append(findings, report.Finding{
				Rule:     RuleLinkStyle,
				Severity: report.SeverityInfo,
				Doc:      doc.Name,
				Line:     l.Line,
				Message:  fmt.Sprintf("link text %q does not describe the target", l.Text),
			})
			continue
		}
		if l.Kind == markdown.LinkExternal && l.Text == l.Dest {
			findings = append(findings, report.Finding{
				Rule:     RuleLinkStyle,
				Severity: report.SeverityInfo,
				Doc:      doc.Name,
				Line:     l.Line,
				Message:  "bare URL; prefer descriptive link text",
			})
		}
	}
	return findings
}
