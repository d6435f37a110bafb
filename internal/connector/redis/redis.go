// Package redis keeps a repository in Redis, one string key per node under a
// configurable prefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Options holds what is needed to reach the server.
type Options struct {
	// Address is host:port. Ignored when URL is set.
	Address  string
	Password string
	DB       int
	// URL is a redis:// URI, parsed with redis.ParseURL.
	URL string
	// Prefix namespaces the node keys so several repositories can share a
	// database.
	Prefix string
}

func (o Options) clientOptions() (*redis.Options, error) {
	if o.URL != "" {
		opts, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return opts, nil
	}
	addr := o.Address
	if addr == "" {
		addr = "localhost:6379"
	}
	return &redis.Options{Addr: addr, Password: o.Password, DB: o.DB}, nil
}

// Store implements nodestore.Store on a redis client. Writers are
// serialised within the process and their changes are applied in a single
// MULTI/EXEC; concurrent writers in other processes are not coordinated.
type Store struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex
}

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(p graph.Path) string { return s.prefix + "node:" + p.String() }

func (s *Store) get(ctx context.Context, p graph.Path) (*nodestore.Record, error) {
	data, err := s.client.Get(ctx, s.key(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed for %s: %w", p, err)
	}
	return nodestore.Unmarshal(data)
}

func (s *Store) View(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&readTx{ctx: ctx, s: s})
}

// Update buffers fn's writes and publishes them only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &writeTx{
		readTx: readTx{ctx: ctx, s: s},
		puts:   map[string]*nodestore.Record{},
		dels:   map[string]graph.Path{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.puts) == 0 && len(tx.dels) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range tx.dels {
			pipe.Del(ctx, s.key(p))
		}
		for _, r := range tx.puts {
			data, err := nodestore.Marshal(r)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.key(r.Path), data, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit failed: %w", err)
	}
	return nil
}

// Len counts the node keys under the prefix.
func (s *Store) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"node:*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

type readTx struct {
	ctx context.Context
	s   *Store
}

func (t *readTx) Get(p graph.Path) (*nodestore.Record, error) { return t.s.get(t.ctx, p) }
func (t *readTx) Put(*nodestore.Record) error                { return graph.ErrReadOnly }
func (t *readTx) Delete(graph.Path) error                    { return graph.ErrReadOnly }

type writeTx struct {
	readTx
	puts map[string]*nodestore.Record
	dels map[string]graph.Path
}

func (t *writeTx) Get(p graph.Path) (*nodestore.Record, error) {
	key := p.String()
	if r, ok := t.puts[key]; ok {
		return copyRecord(r)
	}
	if _, ok := t.dels[key]; ok {
		return nil, graph.ErrNotFound
	}
	return t.readTx.Get(p)
}

func (t *writeTx) Put(r *nodestore.Record) error {
	cp, err := copyRecord(r)
	if err != nil {
		return err
	}
	key := r.Path.String()
	delete(t.dels, key)
	t.puts[key] = cp
	return nil
}

func (t *writeTx) Delete(p graph.Path) error {
	key := p.String()
	delete(t.puts, key)
	t.dels[key] = p
	return nil
}

// copyRecord round-trips r through its encoding so buffered records are
// never shared with the caller.
func copyRecord(r *nodestore.Record) (*nodestore.Record, error) {
	data, err := nodestore.Marshal(r)
	if err != nil {
		return nil, err
	}
	return nodestore.Unmarshal(data)
}

// Source is a ConnectionFactory for a repository in Redis. It owns its
// client; connections share it.
type Source struct {
	name   string
	policy graph.CachePolicy
	client *redis.Client
	store  *Store
	logger *slog.Logger
}

func NewSource(name string, opts Options, policy graph.CachePolicy, logger *slog.Logger) (*Source, error) {
	co, err := opts.clientOptions()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(co)
	logger.Info("opening redis source", slog.String("source", name), slog.String("address", co.Addr), slog.Int("db", co.DB))
	return &Source{
		name:   name,
		policy: policy,
		client: client,
		store:  NewStore(client, opts.Prefix),
		logger: logger,
	}, nil
}

func (s *Source) Store() *Store      { return s.store }
func (s *Source) SourceName() string { return s.name }

// Connect pings the server; an unreachable server is reported as
// connector.ErrSourceUnavailable so the registry retries.
func (s *Source) Connect(ctx context.Context) (connector.Connection, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping failed: %v", connector.ErrSourceUnavailable, err)
	}
	return connector.NewProcessorConnection(s.name, s.policy, nodestore.NewProcessor(s.store), nil), nil
}

func (s *Source) Close() error {
	s.logger.Debug("closing redis source", slog.String("source", s.name))
	return s.client.Close()
}

var _ connector.ConnectionFactory = (*Source)(nil)
