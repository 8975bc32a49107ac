package health

import (
	"errors"
	"testing"
	"time"
)

// TestRequestCount_Empty verifies that RequestCount returns 0 when no
// requests have been recorded within the time window.
func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

// TestRecordRequestSuccess_AndRequestCount verifies that recorded successes
// are counted by RequestCount.
func TestRecordRequestSuccess_AndRequestCount(t *testing.T) {
	Reset()
	RecordRequestSuccess()
	RecordRequestSuccess()
	if n := RequestCount(1 * time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
}

// TestRecordDenial_AndCounts verifies that RecordDenial increments both
// DenialCount and RequestCount.
func TestRecordDenial_AndCounts(t *testing.T) {
	Reset()
	RecordDenial()
	RecordDenial()
	if n := DenialCount(1 * time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := RequestCount(1 * time.Minute); n != 2 {
		t.Errorf("RequestCount() = %d, want 2", n)
	}
}

// TestProbeErrorRate verifies that ProbeErrorRate computes failures and total
// from recorded probe outcomes.
func TestProbeErrorRate(t *testing.T) {
	Reset()
	RecordProbeSuccess()
	RecordProbeSuccess()
	RecordProbeFailure()
	failures, total := ProbeErrorRate(1 * time.Minute)
	if failures != 1 || total != 3 {
		t.Errorf("ProbeErrorRate() = (%d, %d), want (1, 3)", failures, total)
	}
	if n := ProbeFailureCount(1 * time.Minute); n != 1 {
		t.Errorf("ProbeFailureCount() = %d, want 1", n)
	}
}

// TestProbeErrorRate_RequestsExcluded verifies that API request outcomes do
// not leak into the probe failure rate.
func TestProbeErrorRate_RequestsExcluded(t *testing.T) {
	Reset()
	RecordRequestError()
	RecordRequestError()
	RecordProbeSuccess()
	failures, total := ProbeErrorRate(1 * time.Minute)
	if failures != 0 || total != 1 {
		t.Errorf("ProbeErrorRate() = (%d, %d), want (0, 1)", failures, total)
	}
}

// TestShuttingDown verifies the shutdown flag round-trips.
func TestShuttingDown(t *testing.T) {
	Reset()
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true before SetShuttingDown")
	}
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false, want true")
	}
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false")
	}
}

// TestSourceStatus verifies that SetSourceStatus records errors and that a
// nil error clears the unreachable state and stamps SourceLastOK.
func TestSourceStatus(t *testing.T) {
	Reset()
	if err := SourceErr(); err != nil {
		t.Errorf("SourceErr() = %v, want nil", err)
	}
	refreshErr := errors.New("connect: refused")
	SetSourceStatus(refreshErr)
	if err := SourceErr(); !errors.Is(err, refreshErr) {
		t.Errorf("SourceErr() = %v, want %v", err, refreshErr)
	}
	before := time.Now()
	SetSourceStatus(nil)
	if err := SourceErr(); err != nil {
		t.Errorf("SourceErr() = %v after clear, want nil", err)
	}
	if ok := SourceLastOK(); ok.Before(before) {
		t.Errorf("SourceLastOK() = %v, want >= %v", ok, before)
	}
}

// TestWindowPrune verifies that timestamps older than maxAge are dropped so
// the slices do not grow without bound.
func TestWindowPrune(t *testing.T) {
	var w window
	old := time.Now().Add(-2 * maxAge)
	w.times = []time.Time{old, old}
	w.record(time.Now())
	if got := len(w.times); got != 1 {
		t.Errorf("len(times) after prune = %d, want 1", got)
	}
	if n := w.count(1 * time.Minute); n != 1 {
		t.Errorf("count() = %d, want 1", n)
	}
}

// TestReset verifies that Reset clears all recorded state.
func TestReset(t *testing.T) {
	Reset()
	RecordRequestSuccess()
	RecordRequestError()
	RecordDenial()
	RecordProbeFailure()
	SetShuttingDown(true)
	SetSourceStatus(errors.New("down"))
	Reset()
	if n := RequestCount(1 * time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
	if n := ProbeFailureCount(1 * time.Minute); n != 0 {
		t.Errorf("ProbeFailureCount() = %d, want 0", n)
	}
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after Reset")
	}
	if err := SourceErr(); err != nil {
		t.Errorf("SourceErr() = %v after Reset, want nil", err)
	}
}
