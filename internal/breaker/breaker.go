// Package breaker implements the circuit breaker guarding sidecar calls
// (§4.5): closed/open/half-open, tripped by a consecutive-failure threshold,
// recovered by a timed single-probe half-open state. No gobreaker-style
// library appears in any of the five example repos (checked via grep across
// the retrieved corpus), so this is hand-rolled, modeled on the retry
// bookkeeping shape of the teacher's internal/client/http/client.go.
package breaker

import (
	"context"
	"sync"
	"time"

	"poscore/internal/apperr"
)

// State is one of closed, open, half-open.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the breaker is open.
var ErrOpen = apperr.Upstream(apperr.Code(30, 1, 1), "dependency temporarily unavailable", errOpenCause{})

type errOpenCause struct{}

func (errOpenCause) Error() string { return "circuit breaker open" }

// Breaker is process-wide per target service (§5 "per target service,
// process-wide").
type Breaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	failureThreshold    int
	resetTimeout        time.Duration
	openedAt            time.Time
	halfOpenProbeInFlight bool
}

// New builds a Breaker with the given consecutive-failure threshold
// (default 3) and reset timeout (default 60s).
func New(failureThreshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		state:            Closed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

func (b *Breaker) currentStateLocked() State {
	if b.state == Open && time.Since(b.openedAt) >= b.resetTimeout {
		return HalfOpen
	}
	return b.state
}

// allow decides whether a call may proceed, and if this call is the
// half-open probe, marks one in flight so concurrent callers don't all
// probe at once.
func (b *Breaker) allow() (proceed bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case Closed:
		return true, false
	case HalfOpen:
		if b.halfOpenProbeInFlight {
			return false, false
		}
		b.halfOpenProbeInFlight = true
		b.state = HalfOpen
		return true, true
	default: // Open, timeout not yet elapsed
		return false, false
	}
}

func (b *Breaker) recordSuccess(isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = Closed
	if isProbe {
		b.halfOpenProbeInFlight = false
	}
}

func (b *Breaker) recordFailure(isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if isProbe {
		b.halfOpenProbeInFlight = false
		b.state = Open
		b.openedAt = time.Now()
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// Call runs fn if the breaker allows it, tracking the result. Returns
// ErrOpen without invoking fn when the breaker is open and the reset
// timeout has not yet elapsed.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	proceed, isProbe := b.allow()
	if !proceed {
		return ErrOpen
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure(isProbe)
		return err
	}
	b.recordSuccess(isProbe)
	return nil
}
