package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/probe"
	"github.com/docsentry/docsentry/internal/report"
)

// ReportSource provides the most recent finished scan report. Implemented by
// the store; declared here so the cache does not depend on it.
type ReportSource interface {
	LatestReport(ctx context.Context) (string, *report.Report, error)
}

// Warmer seeds the link cache from the last persisted scan so a restart does
// not re-probe every external link.
type Warmer struct {
	source ReportSource
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewWarmer builds a warmer. ttl is the configured fresh lifetime of cached
// results; entries are seeded with whatever remains of it.
func NewWarmer(source ReportSource, c Cache, ttl time.Duration, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{source: source, cache: c, ttl: ttl, logger: logger}
}

// Warm loads the latest stored report and seeds every link result that is
// still inside its freshness TTL. Only positive live results are seeded,
// matching what the checker caches: broken links must re-probe, and stale
// fallbacks must not come back as fresh. Returns the number of entries
// seeded.
func (w *Warmer) Warm(ctx context.Context) (int, error) {
	id, rep, err := w.source.LatestReport(ctx)
	if err != nil {
		return 0, fmt.Errorf("load latest report: %w", err)
	}
	if rep == nil {
		w.logger.Info("no stored scans, link cache starts cold")
		return 0, nil
	}

	now := time.Now()
	seeded, setErrs := 0, 0
	for _, link := range rep.Links {
		if !link.OK || link.Stale {
			continue
		}
		remaining := w.ttl - now.Sub(link.CheckedAt)
		if remaining <= 0 {
			continue
		}
		res := probe.Result{
			URL:        link.URL,
			OK:         link.OK,
			StatusCode: link.StatusCode,
			Category:   probe.Category(link.Category),
			Detail:     link.Detail,
			Duration:   time.Duration(link.DurationMS) * time.Millisecond,
			CheckedAt:  link.CheckedAt,
		}
		if err := w.cache.Set(ctx, link.URL, res, remaining); err != nil {
			setErrs++
			w.logger.Warn("cache warm set failed", zap.String("url", link.URL), zap.Error(err))
			continue
		}
		seeded++
	}

	observability.CacheWarmedEntriesTotal.Add(float64(seeded))
	w.logger.Info("link cache warmed",
		zap.String("scanId", id),
		zap.Int("seeded", seeded),
		zap.Int("skipped", len(rep.Links)-seeded-setErrs),
		zap.Int("errors", setErrs))
	return seeded, nil
}
