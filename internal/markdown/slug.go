package markdown

import (
	"fmt"
	"strings"
	"unicode"
)

// Slugger turns heading text into GitHub-style anchor slugs. Repeated slugs
// within one document get a -1, -2, ... suffix, so every heading has a unique
// anchor. A Slugger tracks state for one document and is not safe for
// concurrent use.
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns a Slugger with an empty dedup table.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Slug returns the anchor for text, deduplicated against earlier calls.
func (s *Slugger) Slug(text string) string {
	base := Slugify(text)
	n, ok := s.seen[base]
	s.seen[base] = n + 1
	if !ok {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// Slugify converts heading text to its anchor form the way GitHub renders it:
// lowercase, punctuation removed, spaces replaced with hyphens. Existing
// hyphens and unicode letters, digits and marks are kept.
func Slugify(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			b.WriteRune(unicode.ToLower(r))
		case r == ' ' || r == '\t':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
