// Package sqlite stores a repository in a single SQLite database. Every node
// is one row of the nodes table holding its encoded record.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
)

const schema = `CREATE TABLE IF NOT EXISTS nodes (
	path   TEXT PRIMARY KEY,
	record BLOB NOT NULL
)`

// Store implements nodestore.Store on a database handle.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; a single pooled connection keeps readers
	// and writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %s: %w", path, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) View(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(&tx{ctx: ctx, tx: sqlTx, readOnly: true})
}

// Update runs fn in a transaction and commits only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx nodestore.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Len counts the stored rows.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM nodes").Scan(&n)
	return n, err
}

func (s *Store) Close() error { return s.db.Close() }

type tx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) Get(p graph.Path) (*nodestore.Record, error) {
	var data []byte
	err := t.tx.QueryRowContext(t.ctx, "SELECT record FROM nodes WHERE path = ?", p.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return nodestore.Unmarshal(data)
}

func (t *tx) Put(r *nodestore.Record) error {
	if t.readOnly {
		return graph.ErrReadOnly
	}
	data, err := nodestore.Marshal(r)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx,
		"INSERT INTO nodes (path, record) VALUES (?, ?) ON CONFLICT(path) DO UPDATE SET record = excluded.record",
		r.Path.String(), data)
	if err != nil {
		return fmt.Errorf("put %s: %w", r.Path, err)
	}
	return nil
}

func (t *tx) Delete(p graph.Path) error {
	if t.readOnly {
		return graph.ErrReadOnly
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM nodes WHERE path = ?", p.String()); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Source is a ConnectionFactory for a repository kept in one database file.
// Connections share the database handle; Close on the Source releases it.
type Source struct {
	name   string
	policy graph.CachePolicy
	store  *Store
}

func NewSource(name, path string, policy graph.CachePolicy) (*Source, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return &Source{name: name, policy: policy, store: store}, nil
}

func (s *Source) Store() *Store      { return s.store }
func (s *Source) SourceName() string { return s.name }

func (s *Source) Connect(ctx context.Context) (connector.Connection, error) {
	if err := s.store.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrSourceUnavailable, err)
	}
	return connector.NewProcessorConnection(s.name, s.policy, nodestore.NewProcessor(s.store), nil), nil
}

func (s *Source) Close() error { return s.store.Close() }

var _ connector.ConnectionFactory = (*Source)(nil)
