// Package health tracks the signals the health endpoint is computed from:
// API request outcomes, probe transport failures, source refresh status and
// the shutdown flag. Counters live in sliding windows so the endpoint always
// reflects recent behavior, not process lifetime totals.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// maxAge bounds how long timestamps are kept; it must cover the longest
// window anyone evaluates (the idle window).
const maxAge = 30 * time.Minute

// window is a pruned sliding record of event timestamps.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

func (w *window) record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = append(w.times, now)
	w.pruneLocked(now)
}

func (w *window) count(d time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.pruneLocked(now)
	cutoff := now.Add(-d)
	n := 0
	for _, ts := range w.times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = nil
}

// pruneLocked drops timestamps older than maxAge. Must hold w.mu.
func (w *window) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(w.times) && w.times[i].Before(cutoff); i++ {
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

var (
	reqSuccess window
	reqError   window
	reqDenied  window
	probeOK    window
	probeFail  window

	shuttingDown atomic.Bool

	sourceMu     sync.Mutex
	sourceErr    error
	sourceLastOK time.Time
)

// RecordRequestSuccess records a served API request. Call from middleware on
// 2xx/3xx responses.
func RecordRequestSuccess() {
	reqSuccess.record(time.Now())
}

// RecordRequestError records a failed API request (5xx).
func RecordRequestError() {
	reqError.record(time.Now())
}

// RecordDenial records a rate-limit denial (429). Call from middleware when
// returning 429.
func RecordDenial() {
	reqDenied.record(time.Now())
}

// RecordProbeSuccess records a link probe that completed at the transport
// level, whatever status the target returned.
func RecordProbeSuccess() {
	probeOK.record(time.Now())
}

// RecordProbeFailure records a transport-level probe failure (timeout, DNS,
// connection). Target 4xx/5xx responses are content results, not failures.
func RecordProbeFailure() {
	probeFail.record(time.Now())
}

// RequestCount returns requests (success + error + denied) within the window.
func RequestCount(d time.Duration) int {
	return reqSuccess.count(d) + reqError.count(d) + reqDenied.count(d)
}

// DenialCount returns 429 responses within the window.
func DenialCount(d time.Duration) int {
	return reqDenied.count(d)
}

// ProbeFailureCount returns transport-level probe failures within the window.
func ProbeFailureCount(d time.Duration) int {
	return probeFail.count(d)
}

// ProbeErrorRate returns (failures, total) probe outcomes within the window.
func ProbeErrorRate(d time.Duration) (failures, total int) {
	f := probeFail.count(d)
	return f, f + probeOK.count(d)
}

// SetShuttingDown sets the drain flag. Call when SIGTERM/SIGINT is received;
// the health endpoint reports shutting-down with 503 while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetSourceStatus records the outcome of the latest source refresh. A nil
// error clears any unreachable state.
func SetSourceStatus(err error) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	sourceErr = err
	if err == nil {
		sourceLastOK = time.Now()
	}
}

// SourceErr returns the error from the latest source refresh, or nil.
func SourceErr() error {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	return sourceErr
}

// SourceLastOK returns when the source last refreshed cleanly (zero if never).
func SourceLastOK() time.Time {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	return sourceLastOK
}

// Reset clears all recorded state. For tests only.
func Reset() {
	reqSuccess.reset()
	reqError.reset()
	reqDenied.reset()
	probeOK.reset()
	probeFail.reset()
	shuttingDown.Store(false)
	sourceMu.Lock()
	sourceErr = nil
	sourceLastOK = time.Time{}
	sourceMu.Unlock()
}
