package connector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how the registry retries Connect on ErrSourceUnavailable.
type RetryPolicy struct {
	MaxRetries uint64
	Base       time.Duration
}

// DefaultRetryPolicy retries three times with Fibonacci backoff from 100ms.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Base: 100 * time.Millisecond}

// Registry holds connection factories keyed by source name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ConnectionFactory
	retry     RetryPolicy
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]ConnectionFactory),
		retry:     DefaultRetryPolicy,
		logger:    logger,
	}
}

// SetRetryPolicy replaces the Connect retry policy. A zero MaxRetries
// disables retries.
func (r *Registry) SetRetryPolicy(p RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = p
}

// Register adds or replaces the factory for f.SourceName().
func (r *Registry) Register(f ConnectionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[f.SourceName()] = f
}

// Unregister removes the factory for name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
}

// Factory returns the factory for name.
func (r *Registry) Factory(name string) (ConnectionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Connect opens a connection to name, retrying while the factory reports
// ErrSourceUnavailable.
func (r *Registry) Connect(ctx context.Context, name string) (Connection, error) {
	f, ok := r.Factory(name)
	if !ok {
		return nil, &SourceError{Source: name, Op: "connect", Err: ErrUnknownSource}
	}
	r.mu.RLock()
	policy := r.retry
	r.mu.RUnlock()

	var conn Connection
	task := func(ctx context.Context) error {
		c, err := f.Connect(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceUnavailable) {
				r.logger.Debug("connect failed, retrying", "source", name, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		conn = c
		return nil
	}
	if policy.MaxRetries == 0 || policy.Base <= 0 {
		c, err := f.Connect(ctx)
		if err != nil {
			return nil, wrapConnect(name, err)
		}
		return c, nil
	}
	b := retry.WithMaxRetries(policy.MaxRetries, retry.NewFibonacci(policy.Base))
	if err := retry.Do(ctx, b, task); err != nil {
		r.logger.Warn("gave up connecting", "source", name, "error", err)
		return nil, wrapConnect(name, err)
	}
	return conn, nil
}

func wrapConnect(name string, err error) error {
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Source: name, Op: "connect", Err: err}
}
