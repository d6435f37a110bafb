// Package memory is an in-memory repository. It backs tests, ephemeral
// caches and small sources.
package memory

import (
	"context"
	"sync"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Store keeps records in a map keyed by canonical path. Records are cloned
// on the way in and out so callers never share state with the store.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*nodestore.Record
}

func NewStore() *Store {
	return &Store{nodes: make(map[string]*nodestore.Record)}
}

func (s *Store) View(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&readTx{s: s})
}

// Update applies fn to a scratch copy of the changed records and publishes
// them only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &writeTx{readTx: readTx{s: s}, puts: map[string]*nodestore.Record{}, dels: map[string]struct{}{}}
	if err := fn(tx); err != nil {
		return err
	}
	for key := range tx.dels {
		delete(s.nodes, key)
	}
	for key, r := range tx.puts {
		s.nodes[key] = r
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

type readTx struct {
	s *Store
}

func (t *readTx) Get(p graph.Path) (*nodestore.Record, error) {
	r, ok := t.s.nodes[p.String()]
	if !ok {
		return nil, graph.ErrNotFound
	}
	return clone(r), nil
}

func (t *readTx) Put(*nodestore.Record) error { return graph.ErrReadOnly }
func (t *readTx) Delete(graph.Path) error     { return graph.ErrReadOnly }

type writeTx struct {
	readTx
	puts map[string]*nodestore.Record
	dels map[string]struct{}
}

func (t *writeTx) Get(p graph.Path) (*nodestore.Record, error) {
	key := p.String()
	if r, ok := t.puts[key]; ok {
		return clone(r), nil
	}
	if _, ok := t.dels[key]; ok {
		return nil, graph.ErrNotFound
	}
	return t.readTx.Get(p)
}

func (t *writeTx) Put(r *nodestore.Record) error {
	key := r.Path.String()
	delete(t.dels, key)
	t.puts[key] = clone(r)
	return nil
}

func (t *writeTx) Delete(p graph.Path) error {
	key := p.String()
	delete(t.puts, key)
	t.dels[key] = struct{}{}
	return nil
}

func clone(r *nodestore.Record) *nodestore.Record {
	cp := &nodestore.Record{
		Path:       r.Path,
		Properties: make(map[string]graph.Property, len(r.Properties)),
		Children:   append([]graph.Segment(nil), r.Children...),
	}
	for name, p := range r.Properties {
		cp.Properties[name] = p.Clone()
	}
	return cp
}

// Source is a ConnectionFactory for a named in-memory repository. Every
// connection shares the same Store.
type Source struct {
	name   string
	policy graph.CachePolicy
	store  *Store
}

func NewSource(name string, policy graph.CachePolicy) *Source {
	return &Source{name: name, policy: policy, store: NewStore()}
}

// Store exposes the backing store, mostly for seeding in tests.
func (s *Source) Store() *Store { return s.store }

func (s *Source) SourceName() string { return s.name }

func (s *Source) Connect(ctx context.Context) (connector.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return connector.NewProcessorConnection(s.name, s.policy, nodestore.NewProcessor(s.store), nil), nil
}

var _ connector.ConnectionFactory = (*Source)(nil)
