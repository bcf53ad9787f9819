// Package circuitbreaker guards calls to remote dependencies. Each dependency
// gets one breaker, shared process wide through a Registry, that trips on the
// failure rate of a count-based sliding window and probes recovery through a
// bounded half-open phase.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrOpen            = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// errTrip is fed to gobreaker to open a breaker whose window crossed the
// failure rate on a successful call.
var errTrip = errors.New("failure rate threshold reached")

// callerDoneError wraps the result of a call whose caller gave up. Such calls
// say nothing about the dependency and are excluded from every count.
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }

func (e *callerDoneError) Unwrap() error { return e.err }

// Policy configures a breaker. FailureRateThreshold is a percentage.
type Policy struct {
	WindowSize           int           `yaml:"window_size"`
	MinimumCalls         int           `yaml:"minimum_calls"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	OpenTimeout          time.Duration `yaml:"open_timeout"`
	HalfOpenProbes       uint32        `yaml:"half_open_probes"`
	CallTimeout          time.Duration `yaml:"call_timeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 50,
		OpenTimeout:          10 * time.Second,
		HalfOpenProbes:       3,
		CallTimeout:          5 * time.Second,
	}
}

// Breaker is a named circuit breaker. Use Do to run calls through it.
type Breaker struct {
	name         string
	policy       Policy
	window       *slidingWindow
	cb           *gobreaker.CircuitBreaker[any]
	isSuccessful func(error) bool
}

// Option customises a Breaker at construction.
type Option func(*Breaker)

// WithSuccessClassifier decides which errors still count as a healthy call,
// e.g. a remote "not found" answer.
func WithSuccessClassifier(fn func(error) bool) Option {
	return func(b *Breaker) { b.isSuccessful = fn }
}

func New(name string, policy Policy, log *zap.Logger, opts ...Option) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Breaker{
		name:         name,
		policy:       policy,
		window:       newSlidingWindow(policy.WindowSize),
		isSuccessful: func(err error) bool { return err == nil },
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:         name,
		MaxRequests:  policy.HalfOpenProbes,
		Timeout:      policy.OpenTimeout,
		ReadyToTrip:  func(gobreaker.Counts) bool { return b.shouldTrip() },
		IsSuccessful: func(err error) bool { return !errors.Is(err, errTrip) && b.isSuccessful(err) },
		IsExcluded: func(err error) bool {
			var done *callerDoneError
			return errors.As(err, &done)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.window.reset()
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("circuit breaker state changed",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	metrics.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// shouldTrip is consulted by gobreaker after every failure in the closed
// state, and by Do before every call.
func (b *Breaker) shouldTrip() bool {
	calls, failures := b.window.snapshot()
	if calls < b.policy.MinimumCalls {
		return false
	}
	return float64(failures)*100 >= b.policy.FailureRateThreshold*float64(calls)
}

// Do executes fn through b with the policy's per-call timeout. When the
// breaker rejects the call fn is not invoked and the error matches ErrOpen or
// ErrTooManyRequests. A call that fails after ctx itself was cancelled is not
// held against the dependency.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b.cb.State() == gobreaker.StateClosed && b.shouldTrip() {
		// gobreaker only evaluates the trip rule on a failure.
		_, _ = b.cb.Execute(func() (any, error) { return nil, errTrip })
		return zero, ErrOpen
	}

	res, err := b.cb.Execute(func() (any, error) {
		callCtx := ctx
		if b.policy.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.policy.CallTimeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		if err != nil && ctx.Err() != nil {
			return v, &callerDoneError{err: err}
		}
		b.window.record(!b.isSuccessful(err))
		return v, err
	})
	var done *callerDoneError
	if errors.As(err, &done) {
		err = done.err
	}
	if res == nil {
		return zero, err
	}
	return res.(T), err
}

// IsRejected reports whether err came from the breaker refusing a call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests)
}

// Registry hands out one Breaker per dependency name.
type Registry struct {
	mu       sync.Mutex
	policy   Policy
	log      *zap.Logger
	opts     []Option
	breakers map[string]*Breaker
}

func NewRegistry(policy Policy, log *zap.Logger, opts ...Option) *Registry {
	return &Registry{
		policy:   policy,
		log:      log,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker registered under name, creating it on first use.
func (r *Registry) Get(name string, opts ...Option) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.policy, r.log, append(append([]Option{}, r.opts...), opts...)...)
	r.breakers[name] = b
	return b
}
