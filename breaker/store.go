package breaker

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/metric"
)

const (
	// DefaultMaxFailures is the consecutive failure count that opens the circuit.
	DefaultMaxFailures = 5
	// DefaultOpenTimeout is how long the circuit stays open before a probe.
	DefaultOpenTimeout = 30 * time.Second
)

// Store guards a chat.Store with a circuit breaker. While the circuit is
// open every call fails fast with errors.ErrStorageUnavailable instead of
// waiting on a backend that is known to be down.
type Store struct {
	next chat.Store
	cb   *gobreaker.CircuitBreaker

	name        string
	maxFailures uint32
	openTimeout time.Duration
	logger      *slog.Logger
	metrics     *metric.ChatMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithName sets the breaker name used in logs.
func WithName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithMaxFailures sets the consecutive failures that trip the circuit.
func WithMaxFailures(n uint32) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

// WithOpenTimeout sets how long the circuit stays open.
func WithOpenTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.openTimeout = d
		}
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records state transitions on the breaker gauge.
func WithMetrics(m *metric.ChatMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore wraps next.
func NewStore(next chat.Store, opts ...Option) *Store {
	s := &Store{
		next:        next,
		name:        "store",
		maxFailures: DefaultMaxFailures,
		openTimeout: DefaultOpenTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.name,
		MaxRequests: 1,
		Timeout:     s.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.maxFailures
		},
		// rejected input says nothing about backend health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsInvalid(err)
		},
		OnStateChange: s.onStateChange,
	})
	s.metrics.RecordBreakerState(metric.BreakerClosed)
	return s
}

func (s *Store) onStateChange(name string, from, to gobreaker.State) {
	s.logger.Warn("Store circuit breaker state changed",
		"breaker", name, "from", from.String(), "to", to.String())
	s.metrics.RecordBreakerState(stateValue(to))
}

func stateValue(st gobreaker.State) int {
	switch st {
	case gobreaker.StateOpen:
		return metric.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metric.BreakerHalfOpen
	default:
		return metric.BreakerClosed
	}
}

// State returns the current breaker state name.
func (s *Store) State() string {
	return s.cb.State().String()
}

// List implements chat.Store.
func (s *Store) List(ctx context.Context) ([]chat.Document, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.List(ctx)
	})
	if err != nil {
		return nil, s.wrap(err, "List")
	}
	return out.([]chat.Document), nil
}

// Create implements chat.Store.
func (s *Store) Create(ctx context.Context, draft chat.Draft) (chat.Document, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Create(ctx, draft)
	})
	if err != nil {
		return chat.Document{}, s.wrap(err, "Create")
	}
	return out.(chat.Document), nil
}

// Delete implements chat.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Delete(ctx, id)
	})
	if err != nil {
		return s.wrap(err, "Delete")
	}
	return nil
}

// wrap passes backend errors through and converts breaker rejections.
func (s *Store) wrap(err error, method string) error {
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.WrapTransient(stderrors.Join(errors.ErrStorageUnavailable, err), "BreakerStore", method, "circuit check")
	}
	return err
}
