// Package scan runs the documentation health pipeline: parse every
// document, apply the structural checks, probe external links, and
// assemble a finalized report.
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docsentry/docsentry/internal/checks"
	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/report"
	"github.com/docsentry/docsentry/internal/source"
)

// Trigger names what started a scan, for logs, metrics and scan history.
type Trigger string

const (
	TriggerInitial  Trigger = "initial"
	TriggerPeriodic Trigger = "periodic"
	TriggerWatch    Trigger = "watch"
	TriggerAPI      Trigger = "api"
	TriggerManual   Trigger = "manual"
)

// Config controls one scanner.
type Config struct {
	// Checks configures the structural rules.
	Checks checks.Config
	// Workers bounds concurrent link probes. Defaults to 8.
	Workers int
	// SkipLinks disables external link probing entirely.
	SkipLinks bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	return c
}

// Scanner runs the pipeline over snapshots.
type Scanner struct {
	checker *LinkChecker
	cfg     Config
	logger  *zap.Logger
}

// NewScanner builds a scanner. checker may be nil when links are skipped.
func NewScanner(checker *LinkChecker, cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{checker: checker, cfg: cfg.withDefaults(), logger: logger}
}

// Run scans one snapshot and returns the finalized report. The only error
// is context cancellation; findings and broken links are report content,
// not errors.
func (s *Scanner) Run(ctx context.Context, snap *source.Snapshot, sourceName string, trigger Trigger) (*report.Report, error) {
	start := time.Now()
	rep := &report.Report{
		ID:        uuid.NewString(),
		Source:    sourceName,
		StartedAt: start,
	}

	docs := make([]*markdown.Document, 0, len(snap.Docs))
	for _, f := range snap.Docs {
		docs = append(docs, markdown.Parse(f.Name, f.Data))
	}
	for _, d := range docs {
		rep.Documents = append(rep.Documents, report.DocumentInfo{
			Name:       d.Name,
			Headings:   len(d.Headings),
			Links:      len(d.Links),
			CodeBlocks: len(d.CodeBlocks),
		})
	}

	rep.Findings = checks.Run(docs, snap.Paths(), s.cfg.Checks)

	if !s.cfg.SkipLinks && s.checker != nil {
		rep.Links = s.checkLinks(ctx, docs)
	}
	if err := ctx.Err(); err != nil {
		observability.ScansTotal.WithLabelValues(string(trigger), "cancelled").Inc()
		return nil, err
	}

	rep.FinishedAt = time.Now()
	rep.Finalize()

	outcome := "clean"
	if rep.Summary.Errors > 0 || rep.Summary.LinksBroken > 0 {
		outcome = "findings"
	}
	observability.ScansTotal.WithLabelValues(string(trigger), outcome).Inc()
	observability.ScanDuration.Observe(time.Since(start).Seconds())
	observability.RecordScanOutcome(rep.Summary.Documents, rep.Summary.Errors,
		rep.Summary.Warnings, rep.Summary.Infos, rep.Summary.LinksBroken)

	s.logger.Info("scan complete",
		zap.String("scanId", rep.ID),
		zap.String("trigger", string(trigger)),
		zap.Int("documents", rep.Summary.Documents),
		zap.Int("errors", rep.Summary.Errors),
		zap.Int("warnings", rep.Summary.Warnings),
		zap.Int("linksChecked", rep.Summary.LinksChecked),
		zap.Int("linksBroken", rep.Summary.LinksBroken),
		zap.Duration("duration", time.Since(start)))
	return rep, nil
}

// checkLinks probes every distinct external URL once, attributing each to
// the documents that reference it.
func (s *Scanner) checkLinks(ctx context.Context, docs []*markdown.Document) []report.LinkResult {
	var urls []string
	where := make(map[string][]string)
	for _, d := range docs {
		for _, u := range d.ExternalURLs() {
			if _, seen := where[u]; !seen {
				urls = append(urls, u)
			}
			where[u] = append(where[u], d.Name)
		}
	}
	if len(urls) == 0 {
		return nil
	}

	results := make([]report.LinkResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, u := range urls {
		g.Go(func() error {
			res := s.checker.Check(gctx, u)
			res.Docs = where[u]
			results[i] = res
			return nil
		})
	}
	// Workers never return errors; failures are categories in the results.
	_ = g.Wait()
	return results
}
