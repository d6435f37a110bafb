package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/billyfs"
	"github.com/agentic-research/fedgraph/internal/connector/jsondoc"
	"github.com/agentic-research/fedgraph/internal/connector/memory"
	"github.com/agentic-research/fedgraph/internal/connector/redis"
	"github.com/agentic-research/fedgraph/internal/connector/sqlite"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/metrics"
)

// Built is a repository together with the connection factories it uses.
type Built struct {
	Repository *federation.Repository
	Registry   *connector.Registry
	// Factories by source name, for callers that need the concrete type
	// (e.g. to seed a memory source or reload a json document).
	Factories map[string]connector.ConnectionFactory

	closers []io.Closer
	logger  *slog.Logger
}

// Close releases database handles and clients held by the factories.
func (b *Built) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options carries the ambient services handed to the repository.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Build opens every source, registers it, and assembles the repository.
// fed must have passed Validate.
func Build(ctx context.Context, fed *api.Federation, opts Options) (*Built, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Built{
		Registry:  connector.NewRegistry(logger),
		Factories: make(map[string]connector.ConnectionFactory, len(fed.Sources)),
		logger:    logger,
	}
	for _, s := range fed.Sources {
		f, err := b.open(s)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("source %s: %w", s.Name, err)
		}
		b.Factories[s.Name] = f
		b.Registry.Register(f)
		logger.Debug("registered source", slog.String("source", s.Name), slog.String("kind", s.Kind))
	}

	cache, projections, err := Projections(fed)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	ttl, _ := duration(fed.NoContributionTTL)
	repo, err := federation.NewRepository(fed.Name, b.Registry, cache, projections, federation.Environment{
		Logger:            logger.With(slog.String("repository", fed.Name)),
		Metrics:           opts.Metrics,
		NoContributionTTL: ttl,
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Repository = repo
	if err := ctx.Err(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Projections parses the cache and source projections of fed.
func Projections(fed *api.Federation) (*federation.Projection, []*federation.Projection, error) {
	var cache *federation.Projection
	if fed.Cache != nil {
		rules, err := federation.ParseRules(cacheRules(fed.Cache)...)
		if err != nil {
			return nil, nil, fmt.Errorf("cache: %w", err)
		}
		if cache, err = federation.NewProjection(fed.Cache.Source, false, rules...); err != nil {
			return nil, nil, fmt.Errorf("cache: %w", err)
		}
	}
	projections := make([]*federation.Projection, 0, len(fed.Projections))
	for _, p := range fed.Projections {
		rules, err := federation.ParseRules(p.Rules...)
		if err != nil {
			return nil, nil, fmt.Errorf("projection %s: %w", p.Source, err)
		}
		proj, err := federation.NewProjection(p.Source, p.ReadOnly, rules...)
		if err != nil {
			return nil, nil, fmt.Errorf("projection %s: %w", p.Source, err)
		}
		projections = append(projections, proj)
	}
	return cache, projections, nil
}

func (b *Built) open(s api.Source) (connector.ConnectionFactory, error) {
	ttl, err := duration(s.TTL)
	if err != nil {
		return nil, err
	}
	policy := graph.CachePolicy{TimeToLive: ttl}
	switch s.Kind {
	case KindMemory:
		return memory.NewSource(s.Name, policy), nil
	case KindSQLite:
		src, err := sqlite.NewSource(s.Name, s.Path, policy)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, src)
		return src, nil
	case KindRedis:
		src, err := redis.NewSource(s.Name, redis.Options{
			Address:  s.Address,
			Password: s.Password,
			DB:       s.DB,
			URL:      s.URL,
			Prefix:   s.Prefix,
		}, policy, b.logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, src)
		return src, nil
	case KindFS:
		return billyfs.NewDirSource(s.Name, s.Path, policy), nil
	case KindMemFS:
		return billyfs.NewMemSource(s.Name, policy), nil
	case KindJSON:
		return jsondoc.OpenFile(s.Name, s.Path, s.Selector, policy)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, s.Kind)
	}
}
