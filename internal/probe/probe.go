// Package probe checks external URLs: HEAD with GET fallback, retries with
// exponential backoff, a per-host rate limit and a per-host circuit breaker
// so one dead host cannot stall or dominate a scan.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/docsentry/docsentry/internal/circuitbreaker"
	"github.com/docsentry/docsentry/internal/observability"
)

// ErrOpenCircuit marks a probe skipped because the host's breaker is open.
var ErrOpenCircuit = circuitbreaker.ErrOpen

// defaultUserAgent identifies the checker to remote servers. Some CDNs block
// the Go default agent outright.
const defaultUserAgent = "docsentry/1.0 (+https://github.com/docsentry/docsentry)"

// maxFragmentBody caps how much HTML is read when verifying a fragment.
const maxFragmentBody = 2 << 20

// Result is the outcome of probing one URL.
type Result struct {
	URL        string        `json:"url"`
	OK         bool          `json:"ok"`
	StatusCode int           `json:"statusCode,omitempty"`
	Category   Category      `json:"category"`
	Detail     string        `json:"detail,omitempty"`
	Duration   time.Duration `json:"duration"`
	CheckedAt  time.Time     `json:"checkedAt"`
	FinalURL   string        `json:"finalUrl,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Stale      bool          `json:"stale,omitempty"` // filled by the cache layer, never by the prober
}

// Prober checks a single URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) Result
}

// Config holds prober parameters.
type Config struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	PerHostRPS     float64
	PerHostBurst   int
	MaxRedirects   int
	UserAgent      string
	CheckFragments bool
	// HostTokens maps a host (as it appears in the URL) to a bearer token
	// for probing targets behind auth. The header goes only to the named
	// host; the HTTP client strips it on cross-host redirects.
	HostTokens map[string]string
	Breaker    circuitbreaker.Config
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 2 * time.Second
	}
	if c.PerHostRPS <= 0 {
		c.PerHostRPS = 4
	}
	if c.PerHostBurst <= 0 {
		c.PerHostBurst = 2
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// HTTPProber is the production Prober.
type HTTPProber struct {
	cfg      Config
	client   *http.Client
	limiters *hostLimiters
	breakers *circuitbreaker.Registry
}

// New creates a prober. The underlying http.Client follows redirects up to
// the configured cap and never reuses cookies between hosts.
func New(cfg Config) *HTTPProber {
	cfg = cfg.withDefaults()
	p := &HTTPProber{
		cfg:      cfg,
		limiters: newHostLimiters(rate.Limit(cfg.PerHostRPS), cfg.PerHostBurst),
		breakers: circuitbreaker.NewRegistry(cfg.Breaker),
	}
	p.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
	return p
}

// Breakers exposes the circuit breaker registry for health reporting.
func (p *HTTPProber) Breakers() *circuitbreaker.Registry {
	return p.breakers
}

// Probe checks one URL. It never returns an error: every failure mode maps
// to a categorized Result so the scan can aggregate outcomes uniformly.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) Result {
	start := time.Now()
	res := Result{URL: rawURL, CheckedAt: start}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		res.Category = CategoryUnsupported
		res.OK = true
		res.Detail = "only http and https URLs are probed"
		res.Duration = time.Since(start)
		return res
	}

	if err := p.limiters.wait(ctx, u.Host); err != nil {
		res.Category = CategorizeErr(err)
		res.Detail = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	breaker := p.breakers.For(u.Host)
	var attempt Result
	attempts := 0
loop:
	for i := 0; i < p.cfg.RetryAttempts; i++ {
		if i > 0 {
			observability.LinkProbeRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				attempt.Category = CategoryTimeout
				attempt.OK = false
				attempt.Detail = ctx.Err().Error()
				break loop
			case <-time.After(p.backoff(i)):
			}
		}

		attempts++
		err := breaker.Call(ctx, func() error {
			attempt = p.attempt(ctx, u)
			if attempt.Category.Broken() || attempt.Category == CategoryUnknown {
				return fmt.Errorf("probe %s: %s", u.Host, attempt.Category)
			}
			return nil
		})
		if errors.Is(err, ErrOpenCircuit) {
			// Keep the real failure when the breaker opened mid-retry;
			// only a probe rejected outright reports as skipped.
			if attempt.Category == "" {
				attempt = Result{Category: CategoryCircuitOpen, OK: true,
					Detail: fmt.Sprintf("host %s circuit open, probe skipped", u.Host)}
			}
			break
		}
		if !attempt.Category.Retryable() {
			break
		}
	}

	attempt.URL = rawURL
	attempt.CheckedAt = start
	attempt.Attempts = attempts
	attempt.Duration = time.Since(start)
	observability.LinkProbesTotal.WithLabelValues(string(attempt.Category)).Inc()
	observability.LinkProbeDuration.Observe(attempt.Duration.Seconds())
	return attempt
}

// attempt performs one HEAD request, falling back to GET when the server
// rejects HEAD or when a fragment needs the body.
func (p *HTTPProber) attempt(ctx context.Context, u *url.URL) Result {
	fragment := u.Fragment
	needBody := p.cfg.CheckFragments && fragment != ""

	method := http.MethodHead
	if needBody {
		method = http.MethodGet
	}

	res := p.request(ctx, method, u)
	if method == http.MethodHead && res.StatusCode >= 400 {
		// Plenty of servers 405 or even 404 HEAD while GET works.
		res = p.request(ctx, http.MethodGet, u)
	}
	return res
}

// request performs a single HTTP call and maps the outcome.
func (p *HTTPProber) request(ctx context.Context, method string, u *url.URL) Result {
	res := Result{URL: u.String()}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	// The fragment is client-side state; strip it from the wire request.
	target := *u
	target.Fragment = ""

	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), nil)
	if err != nil {
		res.Category = CategoryUnknown
		res.Detail = err.Error()
		return res
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")
	if token := p.cfg.HostTokens[target.Host]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res.Category = CategorizeErr(err)
		res.Detail = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Category = CategorizeStatus(resp.StatusCode)
	if final := resp.Request.URL.String(); final != target.String() {
		res.FinalURL = final
		if res.Category == CategoryOK {
			res.Category = CategoryRedirected
		}
	}
	res.OK = !res.Category.Broken()
	if !res.OK {
		res.Detail = http.StatusText(resp.StatusCode)
	}

	if res.OK && method == http.MethodGet && p.cfg.CheckFragments && u.Fragment != "" {
		if htmlResponse(resp) {
			found, err := fragmentInBody(resp.Body, u.Fragment)
			if err == nil && !found {
				res.Category = CategoryFragmentMissing
				res.OK = false
				res.Detail = fmt.Sprintf("no element with id %q on the page", u.Fragment)
			}
		}
	} else {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 32<<10))
	}
	return res
}

func htmlResponse(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// backoff mirrors exponential delay with jitter: base * 2^(attempt-1), capped,
// plus up to 10% random spread so parallel probes do not re-fire in step.
func (p *HTTPProber) backoff(attempt int) time.Duration {
	delay := float64(p.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.cfg.RetryMaxDelay) {
		delay = float64(p.cfg.RetryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// hostLimiters keeps one token bucket per host.
type hostLimiters struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newHostLimiters(rps rate.Limit, burst int) *hostLimiters {
	return &hostLimiters{rps: rps, burst: burst, m: make(map[string]*rate.Limiter)}
}

func (h *hostLimiters) wait(ctx context.Context, host string) error {
	h.mu.Lock()
	l, ok := h.m[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.m[host] = l
	}
	h.mu.Unlock()
	return l.Wait(ctx)
}
