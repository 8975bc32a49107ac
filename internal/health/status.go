package health

import "time"

// Status is the service health classification reported by the health endpoint.
type Status string

const (
	StatusHealthy           Status = "healthy"
	StatusIdle              Status = "idle"
	StatusDegraded          Status = "degraded"
	StatusOverloaded        Status = "overloaded"
	StatusSourceUnreachable Status = "source_unreachable"
	StatusShuttingDown      Status = "shutting_down"
)

// Serving reports whether the status maps to a 200 response. Idle and
// degraded are advisory; the service still serves reports.
func (s Status) Serving() bool {
	switch s {
	case StatusHealthy, StatusIdle, StatusDegraded:
		return true
	default:
		return false
	}
}

// Thresholds configures status evaluation.
type Thresholds struct {
	// Window is the lookback for overload and degraded checks.
	Window time.Duration
	// IdleWindow is the lookback for idle detection.
	IdleWindow time.Duration
	// OverloadDenials is the 429 count within Window that flips the
	// status to overloaded.
	OverloadDenials int
	// DegradedMinProbes is the minimum probe sample size before the
	// failure ratio is considered meaningful.
	DegradedMinProbes int
	// DegradedRatio is the probe transport-failure ratio at or above
	// which the service reports degraded.
	DegradedRatio float64
}

// DefaultThresholds returns the values used when config leaves them unset.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:            5 * time.Minute,
		IdleWindow:        15 * time.Minute,
		OverloadDenials:   50,
		DegradedMinProbes: 10,
		DegradedRatio:     0.5,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Window <= 0 {
		t.Window = d.Window
	}
	if t.IdleWindow <= 0 {
		t.IdleWindow = d.IdleWindow
	}
	if t.OverloadDenials <= 0 {
		t.OverloadDenials = d.OverloadDenials
	}
	if t.DegradedMinProbes <= 0 {
		t.DegradedMinProbes = d.DegradedMinProbes
	}
	if t.DegradedRatio <= 0 {
		t.DegradedRatio = d.DegradedRatio
	}
	return t
}

// Evaluate classifies current health. Checks run in severity order; the
// first match wins:
//
//	shutting_down > source_unreachable > overloaded > idle > degraded > healthy
//
// Idle outranks degraded on purpose: with no recent traffic a stale failure
// ratio says nothing about the service.
func Evaluate(t Thresholds) Status {
	t = t.withDefaults()

	if IsShuttingDown() {
		return StatusShuttingDown
	}
	if SourceErr() != nil {
		return StatusSourceUnreachable
	}
	if DenialCount(t.Window) >= t.OverloadDenials {
		return StatusOverloaded
	}
	if RequestCount(t.IdleWindow) == 0 {
		return StatusIdle
	}
	failures, total := ProbeErrorRate(t.Window)
	if total >= t.DegradedMinProbes && float64(failures)/float64(total) >= t.DegradedRatio {
		return StatusDegraded
	}
	return StatusHealthy
}
