// Package resilience guards calls to the model service with a circuit
// breaker and a client-side rate limiter.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fleetdesk/fleetrag/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting calls
	StateHalfOpen              // allowing probe calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// Name identifies the guarded service in state change callbacks.
	Name string
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int
	// OnStateChange is called, without the lock held, after every transition.
	OnStateChange func(name string, from, to State)
	// IsFailure decides whether an error counts against the service.
	// Nil counts every error except context cancellation.
	IsFailure func(error) bool
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, changed := b.currentState()
	b.mu.Unlock()
	b.notify(changed)
	return st
}

type transition struct{ from, to State }

// currentState moves open to half-open once the timeout elapsed. Must hold mu.
func (b *Breaker) currentState() (State, *transition) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
		return b.state, &transition{StateOpen, StateHalfOpen}
	}
	return b.state, nil
}

func (b *Breaker) set(to State) *transition {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	return &transition{from, to}
}

func (b *Breaker) notify(ts ...*transition) {
	if b.opts.OnStateChange == nil {
		return
	}
	for _, t := range ts {
		if t != nil {
			b.opts.OnStateChange(b.opts.Name, t.from, t.to)
		}
	}
}

func (b *Breaker) before() error {
	b.mu.Lock()
	st, changed := b.currentState()
	var err error
	switch st {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			err = ErrCircuitOpen
		} else {
			b.halfOpenCount++
		}
	}
	b.mu.Unlock()
	b.notify(changed)
	return err
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	var changed *transition
	switch {
	case err != nil && b.opts.IsFailure(err):
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			changed = b.set(StateOpen)
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	case err != nil:
		// not the service's fault; release the probe slot
		if b.state == StateHalfOpen && b.halfOpenCount > 0 {
			b.halfOpenCount--
		}
	default:
		if b.state == StateHalfOpen {
			changed = b.set(StateClosed)
		}
		b.failures = 0
	}
	b.mu.Unlock()
	b.notify(changed)
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := f(ctx)
	b.after(err)
	return err
}

// CallResult is a generic version of Call that works with fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if err := b.before(); err != nil {
		return fn.Err[T](err)
	}
	result := f(ctx)
	_, err := result.Unwrap()
	b.after(err)
	return result
}
