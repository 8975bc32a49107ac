package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/health"
	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/probe"
	"github.com/docsentry/docsentry/internal/report"
)

// LinkChecker resolves a URL to a link result using the cache-aside pattern:
// cache first, live probe on miss, stale fallback when the probe fails at
// the transport level.
type LinkChecker struct {
	prober probe.Prober
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewLinkChecker builds a checker. cache may be nil to probe uncached; ttl
// is the fresh lifetime of cached results.
func NewLinkChecker(prober probe.Prober, c cache.Cache, ttl time.Duration, logger *zap.Logger) *LinkChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkChecker{prober: prober, cache: c, ttl: ttl, logger: logger}
}

// Check returns the link result for url, consulting the cache before the
// prober. Document attribution is left to the caller.
func (c *LinkChecker) Check(ctx context.Context, url string) report.LinkResult {
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, url)
		if err != nil {
			observability.CacheErrorsTotal.Inc()
			c.logger.Warn("link cache get failed", zap.String("url", url), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues("fresh").Inc()
			return toLinkResult(cached)
		}
	}

	live := c.prober.Probe(ctx, url)
	recordProbeHealth(live.Category)

	if transientFailure(live.Category) && c.cache != nil {
		stale, ok, err := c.cache.GetStale(ctx, url)
		if err != nil {
			observability.CacheErrorsTotal.Inc()
			c.logger.Warn("link cache stale get failed", zap.String("url", url), zap.Error(err))
		} else if ok && stale.OK {
			observability.CacheHitsTotal.WithLabelValues("stale").Inc()
			c.logger.Info("serving stale link result",
				zap.String("url", url),
				zap.String("liveCategory", string(live.Category)),
				zap.Time("checkedAt", stale.CheckedAt))
			return toLinkResult(stale)
		}
	}

	if c.cache != nil && cacheable(live) {
		if err := c.cache.Set(ctx, url, live, c.ttl); err != nil {
			observability.CacheErrorsTotal.Inc()
			c.logger.Warn("link cache set failed", zap.String("url", url), zap.Error(err))
		}
	}
	return toLinkResult(live)
}

// transientFailure reports whether the live result says nothing definitive
// about the target, making a stale positive result the better answer.
func transientFailure(cat probe.Category) bool {
	switch cat {
	case probe.CategoryTimeout, probe.CategoryDNS, probe.CategoryTLS,
		probe.CategoryConnection, probe.CategoryHTTP5xx, probe.CategoryUnknown:
		return true
	}
	return false
}

// cacheable reports whether a live result is worth keeping. Only positive
// definitive results are cached: broken links re-probe every scan so the
// report always carries fresh evidence, and transient failures must not
// shadow a recovery for a whole TTL.
func cacheable(res probe.Result) bool {
	return res.OK && res.Category != probe.CategoryCircuitOpen
}

// recordProbeHealth feeds the degraded-status window. Only failures of our
// side of the conversation count; a 404 from the target is a finding, not
// a health problem.
func recordProbeHealth(cat probe.Category) {
	switch cat {
	case probe.CategoryTimeout, probe.CategoryDNS, probe.CategoryTLS,
		probe.CategoryConnection, probe.CategoryUnknown:
		health.RecordProbeFailure()
	case probe.CategoryCircuitOpen:
		// The failures that opened the circuit were already recorded.
	default:
		health.RecordProbeSuccess()
	}
}

func toLinkResult(res probe.Result) report.LinkResult {
	detail := res.Detail
	if res.Category == probe.CategoryRedirected && res.FinalURL != "" {
		detail = "redirects to " + res.FinalURL
	}
	return report.LinkResult{
		URL:        res.URL,
		OK:         res.OK,
		StatusCode: res.StatusCode,
		Category:   string(res.Category),
		Detail:     detail,
		DurationMS: res.Duration.Milliseconds(),
		CheckedAt:  res.CheckedAt,
		Stale:      res.Stale,
	}
}
