package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Severity classifies a finding. Order matters: higher values are worse.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the severity as its string form ("info", "warning", "error").
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string form.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sev, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity parses "info", "warning" or "error" (case-sensitive).
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Finding is a single issue located in a document.
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Doc      string   `json:"doc"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
}

// LinkResult is the recorded outcome of probing one external URL.
// Docs lists every document that references the URL.
type LinkResult struct {
	URL        string    `json:"url"`
	OK         bool      `json:"ok"`
	StatusCode int       `json:"statusCode,omitempty"`
	Category   string    `json:"category"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"durationMs"`
	CheckedAt  time.Time `json:"checkedAt"`
	Docs       []string  `json:"docs,omitempty"`
	Stale      bool      `json:"stale,omitempty"` // Result served from stale cache after a probe failure
}

// DocumentInfo summarizes one scanned document.
type DocumentInfo struct {
	Name       string `json:"name"`
	Headings   int    `json:"headings"`
	Links      int    `json:"links"`
	CodeBlocks int    `json:"codeBlocks"`
}

// Summary holds the counters rendered at the top of a report.
type Summary struct {
	Documents    int `json:"documents"`
	LinksChecked int `json:"linksChecked"`
	LinksBroken  int `json:"linksBroken"`
	LinksWarned  int `json:"linksWarned"`
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
	Infos        int `json:"infos"`
}

// Report is the full outcome of one scan.
type Report struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Documents  []DocumentInfo `json:"documents"`
	Findings   []Finding      `json:"findings"`
	Links      []LinkResult   `json:"links"`
	Summary    Summary        `json:"summary"`
}

// Finalize sorts findings and links into stable order and recomputes the summary.
// Call once after the scan has assembled all results.
func (r *Report) Finalize() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		a, b := r.Findings[i], r.Findings[j]
		if a.Doc != b.Doc {
			return a.Doc < b.Doc
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
	sort.SliceStable(r.Links, func(i, j int) bool {
		return r.Links[i].URL < r.Links[j].URL
	})

	var s Summary
	s.Documents = len(r.Documents)
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		default:
			s.Infos++
		}
	}
	for _, l := range r.Links {
		s.LinksChecked++
		if !l.OK {
			s.LinksBroken++
		} else if l.Category != CategoryOK {
			s.LinksWarned++
		}
	}
	r.Summary = s
}

// CategoryOK is the link category recorded for a clean 2xx response.
// Defined here so summary counting does not depend on the probe package.
const CategoryOK = "ok"

// Duration returns the wall-clock time the scan took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasSeverity reports whether any finding is at or above the given severity,
// or any link is broken (broken links count as errors).
func (r *Report) HasSeverity(min Severity) bool {
	if min <= SeverityError && r.Summary.LinksBroken > 0 {
		return true
	}
	for _, f := range r.Findings {
		if f.Severity >= min {
			return true
		}
	}
	return false
}

// ExitCode maps the report to a process exit code: 0 when no finding reaches
// failOn, 1 otherwise. Internal failures use exit code 2 and are handled by
// the caller, not here.
func (r *Report) ExitCode(failOn Severity) int {
	if r.HasSeverity(failOn) {
		return 1
	}
	return 0
}
