package federation

import (
	"context"
	"log/slog"
	"sync"
)

// Repository is the shared entry point of a federation. It is safe for
// concurrent use and hands out one Session per caller; sessions are not
// shared between goroutines.
type Repository struct {
	name      string
	connector Connector
	env       Environment

	mu          sync.RWMutex
	cache       *Projection
	projections []*Projection
}

// NewRepository validates the projections and returns a repository whose
// sessions connect through c.
func NewRepository(name string, c Connector, cache *Projection, projections []*Projection, env Environment) (*Repository, error) {
	if err := validateProjections(cache, projections); err != nil {
		return nil, err
	}
	return &Repository{
		name:        name,
		connector:   c,
		env:         env.withDefaults(),
		cache:       cache,
		projections: append([]*Projection(nil), projections...),
	}, nil
}

func (r *Repository) Name() string { return r.name }

// NewSession opens a session over the current projections. The caller must
// Close it.
func (r *Repository) NewSession() (Session, error) {
	r.mu.RLock()
	cache, projections := r.cache, append([]*Projection(nil), r.projections...)
	r.mu.RUnlock()
	return NewSession(r.connector, cache, projections, r.env)
}

// Do runs fn with a fresh session and closes it afterwards.
func (r *Repository) Do(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	s, err := r.NewSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			r.env.Logger.Warn("closing session", slog.String("repository", r.name), slog.Any("err", cerr))
		}
	}()
	return fn(ctx, s)
}

// SourceNames lists the federated sources in projection order.
func (r *Repository) SourceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.projections))
	for i, p := range r.projections {
		out[i] = p.SourceName()
	}
	return out
}

// Projections returns the current source projections.
func (r *Repository) Projections() []*Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Projection(nil), r.projections...)
}

// Cache returns the cache projection, or nil.
func (r *Repository) Cache() *Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache
}

// Reconfigure atomically replaces the projections. Open sessions keep the
// projections they started with; cached nodes merged under the old set are
// judged stale by later sessions.
func (r *Repository) Reconfigure(cache *Projection, projections []*Projection) error {
	if err := validateProjections(cache, projections); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = cache
	r.projections = append([]*Projection(nil), projections...)
	r.env.Logger.Info("repository reconfigured",
		slog.String("repository", r.name),
		slog.Int("sources", len(projections)),
		slog.Bool("cached", cache != nil))
	return nil
}

// RemoveSource stops federating name for later sessions. The last source
// cannot be removed.
func (r *Repository) RemoveSource(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := make([]*Projection, 0, len(r.projections))
	for _, p := range r.projections {
		if p.SourceName() != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(r.projections) {
		return nil
	}
	if len(kept) == 0 {
		return ErrNoSources
	}
	r.projections = kept
	return nil
}
