package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// Format selects a report renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (want text or json)", s)
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderText writes a human-readable report: summary line, findings grouped
// by document, then broken and warned links.
func RenderText(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "scan %s: %d document(s), %d finding(s), %d/%d link(s) broken\n",
		r.ID, r.Summary.Documents,
		r.Summary.Errors+r.Summary.Warnings+r.Summary.Infos,
		r.Summary.LinksBroken, r.Summary.LinksChecked)

	lastDoc := ""
	for _, f := range r.Findings {
		if f.Doc != lastDoc {
			fmt.Fprintf(&b, "\n%s\n", f.Doc)
			lastDoc = f.Doc
		}
		loc := "-"
		if f.Line > 0 {
			loc = fmt.Sprintf("%d", f.Line)
		}
		fmt.Fprintf(&b, "  %s:%s  [%s] %s\n", f.Severity, loc, f.Rule, f.Message)
		if f.Detail != "" {
			fmt.Fprintf(&b, "           %s\n", f.Detail)
		}
	}

	broken, warned := 0, 0
	for _, l := range r.Links {
		if !l.OK {
			broken++
		} else if l.Category != CategoryOK {
			warned++
		}
	}
	if broken > 0 {
		fmt.Fprintf(&b, "\nbroken links\n")
		for _, l := range r.Links {
			if l.OK {
				continue
			}
			fmt.Fprintf(&b, "  %s  (%s", l.URL, l.Category)
			if l.StatusCode > 0 {
				fmt.Fprintf(&b, " %d", l.StatusCode)
			}
			fmt.Fprintf(&b, ")")
			if len(l.Docs) > 0 {
				fmt.Fprintf(&b, "  in %s", strings.Join(l.Docs, ", "))
			}
			fmt.Fprintln(&b)
		}
	}
	if warned > 0 {
		fmt.Fprintf(&b, "\nlink warnings\n")
		for _, l := range r.Links {
			if !l.OK || l.Category == CategoryOK {
				continue
			}
			fmt.Fprintf(&b, "  %s  (%s", l.URL, l.Category)
			if l.StatusCode > 0 {
				fmt.Fprintf(&b, " %d", l.StatusCode)
			}
			fmt.Fprintf(&b, ")\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Render writes the report in the requested format.
func Render(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, r)
	default:
		return RenderText(w, r)
	}
}

// WriteFile renders the report to path atomically. The file appears complete
// or not at all, so a watcher on the output path never sees a partial report.
func WriteFile(path string, r *Report, format Format) error {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("creating pending file: %w", err)
	}
	defer f.Cleanup() //nolint:errcheck // cleanup after successful replace is a no-op

	if err := Render(f, r, format); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// WriteOutput renders to stdout when path is empty, otherwise to path.
func WriteOutput(path string, r *Report, format Format) error {
	if path == "" || path == "-" {
		return Render(os.Stdout, r, format)
	}
	return WriteFile(path, r, format)
}
