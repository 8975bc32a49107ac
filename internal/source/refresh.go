package source

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/health"
	"github.com/docsentry/docsentry/internal/observability"
)

// Refresher polls a source on an interval, keeps the latest snapshot and
// invokes a hook when the documentation set changes. Refresh outcomes feed
// the health status, so a broken source surfaces on the health endpoint.
type Refresher struct {
	src      Source
	interval time.Duration
	onChange func(*Snapshot)
	logger   *zap.Logger

	mu       sync.RWMutex
	current  *Snapshot
	checksum [sha256.Size]byte
	loadedAt time.Time
}

// NewRefresher wraps src. onChange runs on the refresh goroutine after
// every load whose checksum differs from the previous one, including the
// first; it may be nil.
func NewRefresher(src Source, interval time.Duration, onChange func(*Snapshot), logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		src:      src,
		interval: interval,
		onChange: onChange,
		logger:   logger,
	}
}

// Current returns the latest snapshot, or nil before the first successful
// load.
func (r *Refresher) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// LoadedAt returns when the current snapshot was loaded.
func (r *Refresher) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Refresh loads once, updates health state and runs the change hook when
// the set changed. Safe to call from the recovery loop as well as the
// ticker.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := r.src.Load(ctx)
	if err != nil {
		observability.SourceRefreshesTotal.WithLabelValues("error").Inc()
		health.SetSourceStatus(err)
		health.NotifySourceDown()
		r.logger.Error("source refresh failed",
			zap.String("source", r.src.Name()),
			zap.Error(err))
		return err
	}
	observability.SourceRefreshesTotal.WithLabelValues("ok").Inc()
	health.SetSourceStatus(nil)

	sum := snap.Checksum()
	r.mu.Lock()
	changed := r.current == nil || sum != r.checksum
	r.current = snap
	r.checksum = sum
	r.loadedAt = time.Now()
	r.mu.Unlock()

	if changed {
		r.logger.Info("documentation set changed",
			zap.String("source", r.src.Name()),
			zap.Int("documents", len(snap.Docs)),
			zap.Int("assets", len(snap.Assets)))
		if r.onChange != nil {
			r.onChange(snap)
		}
	}
	return nil
}

// Run refreshes on the interval until the context ends. An interval of
// zero disables polling; Refresh can still be called directly.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are already logged and fed to health; the
			// ticker keeps going so a recovered source heals
			// without intervention.
			_ = r.Refresh(ctx)
		}
	}
}
