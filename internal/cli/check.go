package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/checks"
	"github.com/docsentry/docsentry/internal/circuitbreaker"
	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/probe"
	"github.com/docsentry/docsentry/internal/report"
	"github.com/docsentry/docsentry/internal/scan"
	"github.com/docsentry/docsentry/internal/source"
)

var (
	checkFormat    string
	checkOutput    string
	checkSkipLinks bool
	checkFailOn    string
	checkWorkers   int
	checkTimeout   time.Duration
	checkLangs     []string
	checkSections  []string
	checkSkipRules []string
)

// NewCheckCommand builds the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Scan a documentation directory once and exit",
		Long: `check parses every markdown file under the directory, runs the
structural rules and probes every external link, then prints a report.

Exit codes: 0 when the documentation is clean at the --fail-on severity,
1 when findings or broken links reach it, 2 on checker failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runCheck(cmd, args); err != nil {
				cmd.PrintErrln("Error:", err)
				os.Exit(2)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&checkFormat, "format", "text", "report format: text or json")
	cmd.Flags().StringVarP(&checkOutput, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&checkSkipLinks, "skip-links", false, "skip external link probing")
	cmd.Flags().StringVar(&checkFailOn, "fail-on", "error", "lowest severity that fails the run: info, warning or error")
	cmd.Flags().IntVar(&checkWorkers, "workers", 0, "concurrent link probes (default from config)")
	cmd.Flags().DurationVar(&checkTimeout, "timeout", 0, "per-link probe timeout (default from config)")
	cmd.Flags().StringSliceVar(&checkLangs, "lang", nil, "allowed code fence languages (repeatable)")
	cmd.Flags().StringSliceVar(&checkSections, "required-section", nil, "heading every document must contain (repeatable)")
	cmd.Flags().StringSliceVar(&checkSkipRules, "skip-rule", nil, "rule names to disable (repeatable)")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("skip-links") {
		cfg.SkipLinks = checkSkipLinks
	}
	if cmd.Flags().Changed("workers") {
		cfg.ScanWorkers = checkWorkers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.ProbeTimeout = checkTimeout
	}
	if cmd.Flags().Changed("lang") {
		cfg.AllowedLangs = checkLangs
	}
	if cmd.Flags().Changed("required-section") {
		cfg.RequiredSections = checkSections
	}
	if cmd.Flags().Changed("skip-rule") {
		cfg.SkipRules = checkSkipRules
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	dir := cfg.SourceDir
	if len(args) == 1 {
		dir = args[0]
	}

	format, err := report.ParseFormat(checkFormat)
	if err != nil {
		return err
	}
	failOn, err := report.ParseSeverity(checkFailOn)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger("console")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.New(source.Options{Type: "dir", Dir: dir})
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	snap, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", dir, err)
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
		},
	})
	checker := scan.NewLinkChecker(prober, cache.NewMemoryCache(cfg.CacheStaleFor), cfg.CacheTTL, logger)
	scanner := scan.NewScanner(checker, scan.Config{
		Checks: checks.Config{
			AllowedLangs:     cfg.AllowedLangs,
			RequiredSections: cfg.RequiredSections,
			SkipRules:        cfg.SkipRules,
		},
		Workers:   cfg.ScanWorkers,
		SkipLinks: cfg.SkipLinks,
	}, logger)

	rep, err := scanner.Run(ctx, snap, src.Name(), scan.TriggerManual)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if err := report.WriteOutput(checkOutput, rep, format); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if code := rep.ExitCode(failOn); code != 0 {
		os.Exit(code)
	}
	return nil
}
