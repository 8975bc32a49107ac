package scan

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/report"
	"github.com/docsentry/docsentry/internal/source"
	"github.com/docsentry/docsentry/internal/store"
)

// SnapshotProvider hands the scheduler the current documentation set.
// *source.Refresher implements it.
type SnapshotProvider interface {
	Current() *source.Snapshot
}

// SchedulerConfig controls scan cadence and history retention.
type SchedulerConfig struct {
	// Interval between periodic scans. Zero disables periodic scanning;
	// requested scans still run.
	Interval time.Duration
	// KeepScans bounds stored history. Defaults to 50.
	KeepScans int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.KeepScans <= 0 {
		c.KeepScans = 50
	}
	return c
}

// Scheduler serializes scans: one initial scan, periodic rescans, and
// requested scans from the API or the file watcher, never more than one at
// a time. It keeps the latest report in memory and persists history.
type Scheduler struct {
	scanner    *Scanner
	snapshots  SnapshotProvider
	sourceName string
	st         *store.Store
	cfg        SchedulerConfig
	logger     *zap.Logger

	scanning atomic.Bool
	requests chan Trigger

	mu          sync.RWMutex
	lastID      string
	last        *report.Report
	lastScanSum [sha256.Size]byte
	haveSum     bool
}

// NewScheduler builds a scheduler. st may be nil to run without history.
func NewScheduler(scanner *Scanner, snapshots SnapshotProvider, sourceName string, st *store.Store, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scanner:    scanner,
		snapshots:  snapshots,
		sourceName: sourceName,
		st:         st,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		requests:   make(chan Trigger, 1),
	}
}

// Latest returns the most recent report and its scan id, or ("", nil)
// before the first scan.
func (s *Scheduler) Latest() (string, *report.Report) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, s.last
}

// Scanning reports whether a scan is running right now.
func (s *Scheduler) Scanning() bool {
	return s.scanning.Load()
}

// Request queues a scan. It returns false when a scan is already running
// or queued; the API maps that to 409.
func (s *Scheduler) Request(trigger Trigger) bool {
	if s.scanning.Load() {
		return false
	}
	select {
	case s.requests <- trigger:
		return true
	default:
		return false
	}
}

// Run executes the scan loop until the context ends: seed the latest
// report from history, scan once, then serve the ticker and the request
// channel.
func (s *Scheduler) Run(ctx context.Context) {
	s.seedFromStore(ctx)
	s.scanOnce(ctx, TriggerInitial)

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.scanOnce(ctx, TriggerPeriodic)
		case trigger := <-s.requests:
			s.scanOnce(ctx, trigger)
		}
	}
}

// seedFromStore restores the newest persisted report so the report
// endpoint has an answer between process start and the first scan.
func (s *Scheduler) seedFromStore(ctx context.Context) {
	if s.st == nil {
		return
	}
	id, rep, err := s.st.LatestReport(ctx)
	if err != nil {
		s.logger.Warn("could not restore last report", zap.Error(err))
		return
	}
	if rep == nil {
		return
	}
	s.mu.Lock()
	s.lastID = id
	s.last = rep
	s.mu.Unlock()
	s.logger.Info("restored last report",
		zap.String("scanId", id),
		zap.Time("finishedAt", rep.FinishedAt))
}

func (s *Scheduler) scanOnce(ctx context.Context, trigger Trigger) {
	if !s.scanning.CompareAndSwap(false, true) {
		return
	}
	defer s.scanning.Store(false)

	snap := s.snapshots.Current()
	if snap == nil {
		s.logger.Warn("no documentation snapshot loaded, skipping scan",
			zap.String("trigger", string(trigger)))
		return
	}

	sum := snap.Checksum()
	if trigger == TriggerWatch {
		// Watch events can arrive for content already scanned, for
		// example the refresher's first load racing the initial scan.
		s.mu.RLock()
		same := s.haveSum && sum == s.lastScanSum
		s.mu.RUnlock()
		if same {
			s.logger.Debug("documentation unchanged since last scan, skipping")
			return
		}
	}

	rep, err := s.scanner.Run(ctx, snap, s.sourceName, trigger)
	if err != nil {
		s.logger.Warn("scan aborted",
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastID = rep.ID
	s.last = rep
	s.lastScanSum = sum
	s.haveSum = true
	s.mu.Unlock()

	s.persist(ctx, rep, trigger)
}

func (s *Scheduler) persist(ctx context.Context, rep *report.Report, trigger Trigger) {
	if s.st == nil {
		return
	}
	if err := s.st.SaveReport(ctx, rep.ID, string(trigger), rep); err != nil {
		s.logger.Error("persist scan failed",
			zap.String("scanId", rep.ID),
			zap.Error(err))
		return
	}
	removed, err := s.st.Prune(ctx, s.cfg.KeepScans)
	if err != nil {
		s.logger.Warn("prune scan history failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("pruned scan history", zap.Int("removed", removed))
	}
}
