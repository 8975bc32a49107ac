package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docsentry/docsentry/internal/api"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/checks"
	"github.com/docsentry/docsentry/internal/circuitbreaker"
	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/health"
	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/probe"
	"github.com/docsentry/docsentry/internal/scan"
	"github.com/docsentry/docsentry/internal/source"
	"github.com/docsentry/docsentry/internal/store"
	"github.com/docsentry/docsentry/internal/watch"
)

// NewServeCommand builds the serve command.
func NewServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the documentation health service",
		Long: `serve loads the configured source, scans it on a schedule and on change,
and exposes reports, scan history and the documents themselves over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(version)
		},
	}
}

func runServe(version string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting docsentry",
		zap.String("version", version),
		zap.String("source", cfg.SourceType),
		zap.String("port", cfg.ServerPort))

	// Scan history. A nil store leaves the service running with the
	// history endpoints disabled.
	var st *store.Store
	if cfg.StoreEnabled {
		if dir := filepath.Dir(cfg.StorePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create store directory: %w", err)
			}
		}
		st, err = store.New(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		logger.Info("scan history enabled", zap.String("path", cfg.StorePath), zap.Int("keep", cfg.KeepScans))
	} else {
		logger.Info("scan history disabled")
	}

	var (
		linkCache cache.Cache
		cachePing func() error
	)
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheStaleFor)
		if err != nil {
			return fmt.Errorf("init memcached: %w", err)
		}
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached unreachable at startup, probes will miss the cache until it returns", zap.Error(err))
		}
		defer func() { _ = mc.Close() }()
		linkCache = mc
		cachePing = mc.Ping
		logger.Info("link cache backend", zap.String("backend", "memcached"), zap.String("addrs", cfg.MemcachedAddrs))
	default:
		linkCache = cache.NewMemoryCache(cfg.CacheStaleFor)
		logger.Info("link cache backend", zap.String("backend", "memory"))
	}

	if st != nil {
		if _, err := cache.NewWarmer(st, linkCache, cfg.CacheTTL, logger).Warm(ctx); err != nil {
			logger.Warn("link cache warming failed, starting cold", zap.Error(err))
		}
	}

	prober := probe.New(probe.Config{
		Timeout:        cfg.ProbeTimeout,
		RetryAttempts:  cfg.ProbeRetries,
		RetryBaseDelay: cfg.ProbeRetryBase,
		RetryMaxDelay:  cfg.ProbeRetryMax,
		PerHostRPS:     cfg.ProbePerHostRPS,
		PerHostBurst:   cfg.ProbePerHostBurst,
		MaxRedirects:   cfg.ProbeMaxRedirects,
		UserAgent:      cfg.ProbeUserAgent,
		CheckFragments: cfg.CheckFragments,
		HostTokens:     cfg.ProbeHostTokens,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Cooldown:         cfg.BreakerCooldown,
			OnStateChange: func(host string, from, to circuitbreaker.State) {
				observability.BreakerTransitionsTotal.WithLabelValues(to.String()).Inc()
				logger.Warn("circuit breaker state change",
					zap.String("host", host),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
			},
		},
	})

	checker := scan.NewLinkChecker(prober, linkCache, cfg.CacheTTL, logger)
	scanner := scan.NewScanner(checker, scan.Config{
		Checks: checks.Config{
			AllowedLangs:     cfg.AllowedLangs,
			RequiredSections: cfg.RequiredSections,
			SkipRules:        cfg.SkipRules,
		},
		Workers:   cfg.ScanWorkers,
		SkipLinks: cfg.SkipLinks,
	}, logger)

	src, err := source.New(source.Options{
		Type:      cfg.SourceType,
		Dir:       cfg.SourceDir,
		URL:       cfg.SourceURL,
		Branch:    cfg.SourceBranch,
		Subdir:    cfg.SourceSubdir,
		Username:  cfg.SourceUsername,
		Token:     cfg.SourceToken,
		Bucket:    cfg.SourceBucket,
		Prefix:    cfg.SourcePrefix,
		Region:    cfg.SourceRegion,
		Anonymous: cfg.SourceAnonymous,
		DocName:   cfg.SourceDocName,
	})
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	// The change hook requests a scan on every new snapshot, including the
	// first. The scheduler dedupes by snapshot checksum, so the request
	// queued during the startup load does not cause a second scan.
	var sched *scan.Scheduler
	ref := source.NewRefresher(src, cfg.RefreshInterval, func(*source.Snapshot) {
		if sched != nil {
			sched.Request(scan.TriggerWatch)
		}
	}, logger)
	sched = scan.NewScheduler(scanner, ref, src.Name(), st, scan.SchedulerConfig{
		Interval:  cfg.ScanInterval,
		KeepScans: cfg.KeepScans,
	}, logger)

	var watcher *watch.Watcher
	if cfg.SourceType == "dir" && cfg.WatchEnabled {
		watcher, err = watch.New(cfg.SourceDir, cfg.WatchDebounce, func() {
			_ = ref.Refresh(ctx)
		}, logger)
		if err != nil {
			logger.Warn("file watcher unavailable, relying on periodic refresh", zap.Error(err))
			watcher = nil
		}
	}

	observability.RegisterHealthGauges(cfg.HealthWindow)

	health.StartRecoveryListener(ctx, health.RecoveryConfig{
		InitialDelay: cfg.RecoveryInitialDelay,
		MaxDelay:     cfg.RecoveryMaxDelay,
		Validate:     ref.Refresh,
		OnExhausted: func() {
			logger.Error("source recovery attempts exhausted, waiting for the next periodic refresh")
		},
		Logger: logger,
	})

	// First load. Not fatal: the health endpoint reports source_unreachable
	// and the recovery loop keeps retrying with backoff.
	if err := ref.Refresh(ctx); err != nil {
		logger.Warn("initial source load failed", zap.Error(err))
	}

	go ref.Run(ctx)
	go sched.Run(ctx)
	if watcher != nil {
		go watcher.Run(ctx)
	}

	handler := api.NewHandler(sched, ref, st, &api.Options{
		Thresholds: health.Thresholds{
			Window:            cfg.HealthWindow,
			IdleWindow:        cfg.HealthIdleWindow,
			OverloadDenials:   cfg.OverloadDenials,
			DegradedMinProbes: cfg.DegradedMinProbes,
			DegradedRatio:     cfg.DegradedRatio,
		},
		Version:   version,
		CachePing: cachePing,
	}, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := api.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
		// WriteTimeout must outlast the per-request timeout or responses
		// get cut off mid-write.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	health.SetShuttingDown(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown incomplete", zap.Error(err))
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Warn("telemetry flush failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
