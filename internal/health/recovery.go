package health

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RecoveryConfig controls the source recovery loop.
type RecoveryConfig struct {
	// InitialDelay is the first retry delay.
	InitialDelay time.Duration
	// MaxDelay caps the Fibonacci progression.
	MaxDelay time.Duration
	// Validate attempts to reach the source. A nil return ends the loop.
	Validate func(ctx context.Context) error
	// OnExhausted runs if every delay in the progression is consumed
	// without a successful validation. May be nil.
	OnExhausted func()
	Logger      *zap.Logger
}

// fibDelays returns the Fibonacci progression of delays from initial up to
// and including the first value at or above max.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	delays := []time.Duration{initial}
	a, b := initial, initial
	for b < max {
		a, b = b, a+b
		if b > max {
			b = max
		}
		delays = append(delays, b)
	}
	return delays
}

var (
	sourceDownCh    = make(chan struct{}, 1)
	recoveryRunning atomic.Bool
)

// NotifySourceDown signals the recovery listener that a source refresh
// failed. Non-blocking; repeated signals while a recovery is pending
// coalesce into one.
func NotifySourceDown() {
	select {
	case sourceDownCh <- struct{}{}:
	default:
	}
}

// StartRecoveryListener starts a goroutine that waits for source-down
// signals and runs the recovery loop for each. Only one listener runs per
// process; subsequent calls are no-ops.
func StartRecoveryListener(ctx context.Context, cfg RecoveryConfig) {
	if !recoveryRunning.CompareAndSwap(false, true) {
		return
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		defer recoveryRunning.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sourceDownCh:
			}
			if err := RunRecovery(ctx, cfg); err != nil {
				logger.Warn("source recovery abandoned", zap.Error(err))
			}
		}
	}()
}

// RunRecovery walks the Fibonacci delay progression, calling cfg.Validate
// after each delay. It returns nil as soon as a validation succeeds. If the
// progression is exhausted it calls cfg.OnExhausted and returns the last
// validation error.
func RunRecovery(ctx context.Context, cfg RecoveryConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delays := fibDelays(cfg.InitialDelay, cfg.MaxDelay)
	var lastErr error
	for i, delay := range delays {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		err := cfg.Validate(ctx)
		if err == nil {
			logger.Info("source recovered",
				zap.Int("attempt", i+1),
				zap.Duration("delay", delay))
			return nil
		}
		lastErr = err
		logger.Warn("source still unreachable",
			zap.Int("attempt", i+1),
			zap.Int("attemptsTotal", len(delays)),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	if cfg.OnExhausted != nil {
		cfg.OnExhausted()
	}
	return lastErr
}
