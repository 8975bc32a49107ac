package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	LogFormat       string

	SourceType      string // "dir", "git", "s3", "gcs" or "http"
	SourceDir       string
	SourceURL       string
	SourceBranch    string
	SourceSubdir    string
	SourceUsername  string
	SourceToken     string
	SourceBucket    string
	SourcePrefix    string
	SourceRegion    string
	SourceAnonymous bool
	SourceDocName   string
	RefreshInterval time.Duration
	WatchEnabled    bool
	WatchDebounce   time.Duration

	ScanInterval     time.Duration
	ScanWorkers      int
	SkipLinks        bool
	AllowedLangs     []string
	RequiredSections []string
	SkipRules        []string

	ProbeTimeout      time.Duration
	ProbeRetries      int
	ProbeRetryBase    time.Duration
	ProbeRetryMax     time.Duration
	ProbePerHostRPS   float64
	ProbePerHostBurst int
	ProbeMaxRedirects int
	ProbeUserAgent    string
	CheckFragments    bool
	ProbeHostTokens   map[string]string

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerCooldown         time.Duration

	CacheBackend          string // "memory" or "memcached"
	CacheTTL              time.Duration
	CacheStaleFor         time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	StoreEnabled bool
	StorePath    string
	KeepScans    int

	HealthWindow      time.Duration
	HealthIdleWindow  time.Duration
	OverloadDenials   int
	DegradedMinProbes int
	DegradedRatio     float64

	RecoveryInitialDelay time.Duration
	RecoveryMaxDelay     time.Duration
}

type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Log struct {
		Format string `yaml:"format"`
	} `yaml:"log"`

	Source struct {
		Type            string `yaml:"type"`
		Dir             string `yaml:"dir"`
		URL             string `yaml:"url"`
		Branch          string `yaml:"branch"`
		Subdir          string `yaml:"subdir"`
		Username        string `yaml:"username"`
		Bucket          string `yaml:"bucket"`
		Prefix          string `yaml:"prefix"`
		Region          string `yaml:"region"`
		Anonymous       bool   `yaml:"anonymous"`
		DocName         string `yaml:"doc_name"`
		RefreshInterval string `yaml:"refresh_interval"`
		Watch           *bool  `yaml:"watch"`
		WatchDebounce   string `yaml:"watch_debounce"`
	} `yaml:"source"`

	Scan struct {
		Interval         string   `yaml:"interval"`
		Workers          int      `yaml:"workers"`
		SkipLinks        bool     `yaml:"skip_links"`
		AllowedLangs     []string `yaml:"allowed_langs"`
		RequiredSections []string `yaml:"required_sections"`
		SkipRules        []string `yaml:"skip_rules"`
	} `yaml:"scan"`

	Probe struct {
		Timeout          string  `yaml:"timeout"`
		RetryMaxAttempts int     `yaml:"retry_max_attempts"`
		RetryBaseDelay   string  `yaml:"retry_base_delay"`
		RetryMaxDelay    string  `yaml:"retry_max_delay"`
		PerHostRPS       float64 `yaml:"per_host_rps"`
		PerHostBurst     int     `yaml:"per_host_burst"`
		MaxRedirects     int     `yaml:"max_redirects"`
		UserAgent        string  `yaml:"user_agent"`
		CheckFragments   *bool   `yaml:"check_fragments"`
		Breaker          struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Cooldown         string `yaml:"cooldown"`
		} `yaml:"breaker"`
	} `yaml:"probe"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleFor  string `yaml:"stale_for"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Store struct {
		Enabled   *bool  `yaml:"enabled"`
		Path      string `yaml:"path"`
		KeepScans int    `yaml:"keep_scans"`
	} `yaml:"store"`

	Health struct {
		Window               string  `yaml:"window"`
		IdleWindow           string  `yaml:"idle_window"`
		OverloadDenials      int     `yaml:"overload_denials"`
		DegradedMinProbes    int     `yaml:"degraded_min_probes"`
		DegradedRatio        float64 `yaml:"degraded_ratio"`
		RecoveryInitialDelay string  `yaml:"recovery_initial_delay"`
		RecoveryMaxDelay     string  `yaml:"recovery_max_delay"`
	} `yaml:"health"`
}

type secretsFile struct {
	SourceToken string            `yaml:"source_token"`
	ProbeTokens map[string]string `yaml:"probe_tokens"`
}

// Default returns the configuration used when no file sets a value. The check
// command runs on these directly; serve layers the YAML file on top.
func Default() *Config {
	return &Config{
		ServerPort:      "8084",
		RequestTimeout:  15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		LogFormat:       "json",

		SourceType:      "dir",
		SourceDir:       "docs",
		RefreshInterval: 5 * time.Minute,
		WatchEnabled:    true,
		WatchDebounce:   500 * time.Millisecond,

		ScanInterval: time.Hour,
		ScanWorkers:  8,

		ProbeTimeout:      10 * time.Second,
		ProbeRetries:      3,
		ProbeRetryBase:    100 * time.Millisecond,
		ProbeRetryMax:     2 * time.Second,
		ProbePerHostRPS:   4,
		ProbePerHostBurst: 2,
		ProbeMaxRedirects: 5,
		CheckFragments:    true,

		BreakerFailureThreshold: 5,
		BreakerSuccessThreshold: 2,
		BreakerCooldown:         30 * time.Second,

		CacheBackend:          "memory",
		CacheTTL:              time.Hour,
		CacheStaleFor:         24 * time.Hour,
		MemcachedAddrs:        "localhost:11211",
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,

		StoreEnabled: true,
		StorePath:    "data/docsentry.db",
		KeepScans:    50,

		HealthWindow:      5 * time.Minute,
		HealthIdleWindow:  15 * time.Minute,
		OverloadDenials:   50,
		DegradedMinProbes: 10,
		DegradedRatio:     0.5,

		RecoveryInitialDelay: time.Minute,
		RecoveryMaxDelay:     15 * time.Minute,
	}
}

// Load reads configuration from the given path, or from
// config/{DOCSENTRY_ENV}.yaml (default dev) when path is empty. A .env file
// in the working directory is loaded first so env overrides work in dev.
// The source token comes from DOCSENTRY_SOURCE_TOKEN or a secrets.yaml next
// to the config file; secrets.yaml may also map hosts to probe bearer tokens
// under probe_tokens.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	if path == "" {
		env := os.Getenv("DOCSENTRY_ENV")
		if env == "" {
			env = "dev"
		}
		path = filepath.Join("config", env+".yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if fc.Server.Port != "" {
		cfg.ServerPort = fc.Server.Port
	}
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, cfg.RequestTimeout)
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, cfg.ShutdownTimeout)
	if fc.Server.RateLimitRPS > 0 {
		cfg.RateLimitRPS = fc.Server.RateLimitRPS
	}
	if fc.Server.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.Server.RateLimitBurst
	}
	if fc.Log.Format != "" {
		cfg.LogFormat = strings.TrimSpace(strings.ToLower(fc.Log.Format))
	}

	if fc.Source.Type != "" {
		cfg.SourceType = strings.TrimSpace(strings.ToLower(fc.Source.Type))
	}
	if fc.Source.Dir != "" {
		cfg.SourceDir = fc.Source.Dir
	}
	cfg.SourceURL = fc.Source.URL
	cfg.SourceBranch = fc.Source.Branch
	cfg.SourceSubdir = fc.Source.Subdir
	cfg.SourceUsername = fc.Source.Username
	cfg.SourceBucket = fc.Source.Bucket
	cfg.SourcePrefix = fc.Source.Prefix
	cfg.SourceRegion = fc.Source.Region
	cfg.SourceAnonymous = fc.Source.Anonymous
	cfg.SourceDocName = fc.Source.DocName
	cfg.RefreshInterval = parseDuration(fc.Source.RefreshInterval, cfg.RefreshInterval)
	if fc.Source.Watch != nil {
		cfg.WatchEnabled = *fc.Source.Watch
	}
	cfg.WatchDebounce = parseDuration(fc.Source.WatchDebounce, cfg.WatchDebounce)

	cfg.ScanInterval = parseDuration(fc.Scan.Interval, cfg.ScanInterval)
	if fc.Scan.Workers > 0 {
		cfg.ScanWorkers = fc.Scan.Workers
	}
	cfg.SkipLinks = fc.Scan.SkipLinks
	cfg.AllowedLangs = fc.Scan.AllowedLangs
	cfg.RequiredSections = fc.Scan.RequiredSections
	cfg.SkipRules = fc.Scan.SkipRules

	cfg.ProbeTimeout = parseDurationOrZero(fc.Probe.Timeout, cfg.ProbeTimeout)
	if fc.Probe.RetryMaxAttempts > 0 {
		cfg.ProbeRetries = fc.Probe.RetryMaxAttempts
	}
	cfg.ProbeRetryBase = parseDuration(fc.Probe.RetryBaseDelay, cfg.ProbeRetryBase)
	cfg.ProbeRetryMax = parseDuration(fc.Probe.RetryMaxDelay, cfg.ProbeRetryMax)
	if fc.Probe.PerHostRPS > 0 {
		cfg.ProbePerHostRPS = fc.Probe.PerHostRPS
	}
	if fc.Probe.PerHostBurst > 0 {
		cfg.ProbePerHostBurst = fc.Probe.PerHostBurst
	}
	if fc.Probe.MaxRedirects > 0 {
		cfg.ProbeMaxRedirects = fc.Probe.MaxRedirects
	}
	if fc.Probe.UserAgent != "" {
		cfg.ProbeUserAgent = fc.Probe.UserAgent
	}
	if fc.Probe.CheckFragments != nil {
		cfg.CheckFragments = *fc.Probe.CheckFragments
	}
	if fc.Probe.Breaker.FailureThreshold > 0 {
		cfg.BreakerFailureThreshold = fc.Probe.Breaker.FailureThreshold
	}
	if fc.Probe.Breaker.SuccessThreshold > 0 {
		cfg.BreakerSuccessThreshold = fc.Probe.Breaker.SuccessThreshold
	}
	cfg.BreakerCooldown = parseDuration(fc.Probe.Breaker.Cooldown, cfg.BreakerCooldown)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, cfg.CacheTTL)
	cfg.CacheStaleFor = parseDuration(fc.Cache.StaleFor, cfg.CacheStaleFor)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, cfg.MemcachedTimeout)
	if fc.Cache.Memcached.MaxIdleConns > 0 {
		cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	}

	if fc.Store.Enabled != nil {
		cfg.StoreEnabled = *fc.Store.Enabled
	}
	if fc.Store.Path != "" {
		cfg.StorePath = fc.Store.Path
	}
	if fc.Store.KeepScans > 0 {
		cfg.KeepScans = fc.Store.KeepScans
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, cfg.HealthWindow)
	cfg.HealthIdleWindow = parseDuration(fc.Health.IdleWindow, cfg.HealthIdleWindow)
	if fc.Health.OverloadDenials > 0 {
		cfg.OverloadDenials = fc.Health.OverloadDenials
	}
	if fc.Health.DegradedMinProbes > 0 {
		cfg.DegradedMinProbes = fc.Health.DegradedMinProbes
	}
	if fc.Health.DegradedRatio > 0 {
		cfg.DegradedRatio = fc.Health.DegradedRatio
	}
	cfg.RecoveryInitialDelay = parseDuration(fc.Health.RecoveryInitialDelay, cfg.RecoveryInitialDelay)
	cfg.RecoveryMaxDelay = parseDuration(fc.Health.RecoveryMaxDelay, cfg.RecoveryMaxDelay)

	cfg.SourceToken = os.Getenv("DOCSENTRY_SOURCE_TOKEN")

	secretsPath := filepath.Join(filepath.Dir(path), "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else {
		var sec secretsFile
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
		if cfg.SourceToken == "" {
			cfg.SourceToken = sec.SourceToken
		}
		cfg.ProbeHostTokens = sec.ProbeTokens
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations pass through so Validate
// can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// Validate checks value ranges after file, env and flag merging. The check
// command calls it directly on flag-built configs.
func Validate(cfg *Config) error {
	if cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	switch cfg.CacheBackend {
	case "memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.SourceType {
	case "", "dir", "git", "s3", "gcs", "http":
	default:
		return fmt.Errorf("source.type must be dir, git, s3, gcs or http, got %q", cfg.SourceType)
	}
	if cfg.DegradedRatio <= 0 || cfg.DegradedRatio > 1 {
		return fmt.Errorf("health.degraded_ratio must be in (0, 1], got %v", cfg.DegradedRatio)
	}
	return nil
}
