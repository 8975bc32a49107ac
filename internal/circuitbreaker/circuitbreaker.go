// Package circuitbreaker keeps the probe from hammering hosts that keep
// failing. Each host gets its own breaker; a registry hands them out.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

// Config holds breaker parameters shared by all hosts in a registry.
type Config struct {
	// FailureThreshold opens the breaker after this many consecutive failures.
	FailureThreshold int
	// SuccessThreshold closes a half-open breaker after this many successes.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects before allowing a probe.
	Cooldown time.Duration
	// OnStateChange is called outside the lock on every transition.
	OnStateChange func(host string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Breaker tracks consecutive failures against one host and short-circuits
// calls once the failure threshold is hit.
type Breaker struct {
	mu          sync.Mutex
	host        string
	cfg         Config
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker for one host.
func NewBreaker(host string, cfg Config) *Breaker {
	return &Breaker{host: host, cfg: cfg.withDefaults()}
}

// Call runs fn when the breaker allows it. While open it returns ErrOpen
// until the cooldown elapses, then lets a single probe through half-open.
func (b *Breaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.failures = 0
		}
		return err
	}

	b.failures = 0
	b.successes++
	if b.state == StateHalfOpen && b.successes >= b.cfg.SuccessThreshold {
		b.transition(StateClosed)
	}
	return nil
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.host, from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry hands out one breaker per host, creating them on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry with shared breaker config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg.withDefaults(), breakers: make(map[string]*Breaker)}
}

// For returns the breaker for host, creating it if needed.
func (r *Registry) For(host string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[host]
	if !ok {
		b = NewBreaker(host, r.cfg)
		r.breakers[host] = b
	}
	return b
}

// States returns a snapshot of every known host's state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for host, b := range r.breakers {
		out[host] = b.State()
	}
	return out
}

// OpenCount returns how many breakers are currently open or half-open.
func (r *Registry) OpenCount() int {
	n := 0
	for _, s := range r.States() {
		if s != StateClosed {
			n++
		}
	}
	return n
}
