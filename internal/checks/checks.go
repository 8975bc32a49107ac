// Package checks holds the document rules: anchor resolution, table of
// contents sync, fence validation, heading structure, required sections and
// link style. Each rule inspects one parsed document against the shared
// context and emits findings.
package checks

import (
	"path"

	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/report"
)

// Rule names, used in findings, config skip lists and metrics labels.
const (
	RuleAnchorResolves   = "anchor-resolves"
	RuleTOCSync          = "toc-sync"
	RuleFenceValid       = "fence-valid"
	RuleHeadingStructure = "heading-structure"
	RuleRequiredSections = "required-sections"
	RuleLinkStyle        = "link-style"
)

// Config tunes the rule set. Zero value enables every rule with the default
// language allow list and no required sections.
type Config struct {
	// AllowedLangs lists accepted fence info strings. Empty means DefaultLangs.
	AllowedLangs []string
	// RequiredSections lists heading texts (case-insensitive) every document
	// must contain. Empty disables the rule.
	RequiredSections []string
	// SkipRules disables rules by name.
	SkipRules []string
}

// DefaultLangs is the fence language allow list used when none is configured.
var DefaultLangs = []string{
	"prisma", "ts", "tsx", "js", "jsx", "json", "jsonc",
	"bash", "sh", "env", "yaml", "text", "sql", "diff",
}

// Context carries the cross-document state rules need: every parsed document
// by name and the full set of file paths in the source, for relative link
// targets that are not markdown.
type Context struct {
	Docs   map[string]*markdown.Document
	Files  map[string]struct{}
	Config Config

	langs map[string]struct{}
}

// NewContext indexes the documents and file list for rule lookups.
func NewContext(docs []*markdown.Document, files []string, cfg Config) *Context {
	ctx := &Context{
		Docs:   make(map[string]*markdown.Document, len(docs)),
		Files:  make(map[string]struct{}, len(files)),
		Config: cfg,
		langs:  make(map[string]struct{}),
	}
	for _, d := range docs {
		ctx.Docs[d.Name] = d
	}
	for _, f := range files {
		ctx.Files[f] = struct{}{}
	}
	langs := cfg.AllowedLangs
	if len(langs) == 0 {
		langs = DefaultLangs
	}
	for _, l := range langs {
		ctx.langs[l] = struct{}{}
	}
	return ctx
}

// langAllowed reports whether a fence info string is on the allow list.
func (c *Context) langAllowed(lang string) bool {
	_, ok := c.langs[lang]
	return ok
}

// resolveRelative turns a relative destination in doc into a source-rooted
// path ("guides/a.md" + "../b.md" -> "b.md").
func resolveRelative(doc *markdown.Document, dest string) string {
	return path.Join(path.Dir(doc.Name), dest)
}

// Rule checks one document and reports findings.
type Rule interface {
	Name() string
	Check(doc *markdown.Document, ctx *Context) []report.Finding
}

// All returns every rule in execution order.
func All() []Rule {
	return []Rule{
		anchorRule{},
		tocRule{},
		fenceRule{},
		structureRule{},
		sectionsRule{},
		linkStyleRule{},
	}
}

// Enabled returns the rules left after applying the config skip list.
func Enabled(cfg Config) []Rule {
	skip := make(map[string]struct{}, len(cfg.SkipRules))
	for _, name := range cfg.SkipRules {
		skip[name] = struct{}{}
	}
	var rules []Rule
	for _, r := range All() {
		if _, ok := skip[r.Name()]; ok {
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

// Run executes the enabled rules over all documents.
func Run(docs []*markdown.Document, files []string, cfg Config) []report.Finding {
	ctx := NewContext(docs, files, cfg)
	var findings []report.Finding
	for _, rule := range Enabled(cfg) {
		for _, doc := range docs {
			findings = append(findings, rule.Check(doc, ctx)...)
		}
	}
	return findings
}
