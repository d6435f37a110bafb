package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
)

func open(t *testing.T, path string) (*Source, connector.Connection) {
	t.Helper()
	src, err := NewSource("db", path, graph.CachePolicy{})
	require.NoError(t, err)
	conn, err := src.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = src.Close()
	})
	return src, conn
}

func TestSource_RootOnEmptyDatabase(t *testing.T) {
	_, conn := open(t, filepath.Join(t.TempDir(), "empty.db"))
	read := graph.NewReadNode(graph.Root)
	require.NoError(t, conn.Execute(context.Background(), read))
	require.NoError(t, read.Err())
	assert.Empty(t, read.Children())
}

func TestSource_CreateReadUpdate(t *testing.T) {
	ctx := context.Background()
	src, conn := open(t, filepath.Join(t.TempDir(), "nodes.db"))

	create := graph.NewCreateNode(graph.Root, "a", graph.ConflictAppend, graph.NewProperty("color", "red"))
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())

	update := graph.NewUpdateProperties(graph.MustParsePath("/a"), graph.NewProperty("size", "3"))
	require.NoError(t, conn.Execute(ctx, update))
	require.NoError(t, update.Err())

	read := graph.NewReadNode(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, "red", read.Properties()["color"].First())
	assert.Equal(t, "3", read.Properties()["size"].First())

	n, err := src.Store().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "root and /a")
}

func TestSource_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	first, err := NewSource("db", path, graph.CachePolicy{})
	require.NoError(t, err)
	require.NoError(t, nodestore.Ensure(ctx, first.Store(), graph.MustParsePath("/a/b"), graph.NewBinaryProperty("k", []byte{0, 1, 2})))
	require.NoError(t, first.Close())

	_, conn := open(t, path)
	read := graph.NewReadProperties(graph.MustParsePath("/a/b"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, [][]byte{{0, 1, 2}}, read.Properties()["k"].Values)
}

func TestStore_FailedUpdateRollsBack(t *testing.T) {
	ctx := context.Background()
	src, conn := open(t, filepath.Join(t.TempDir(), "rollback.db"))
	boom := errors.New("boom")

	err := src.Store().Update(ctx, func(tx nodestore.Tx) error {
		r, err := nodestore.Unmarshal([]byte(`{"path":"/ghost"}`))
		if err != nil {
			return err
		}
		if err := tx.Put(r); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	read := graph.NewReadNode(graph.MustParsePath("/ghost"))
	require.NoError(t, conn.Execute(ctx, read))
	assert.ErrorIs(t, read.Err(), graph.ErrNotFound)
}

func TestSource_DeleteAndMove(t *testing.T) {
	ctx := context.Background()
	src, conn := open(t, filepath.Join(t.TempDir(), "tree.db"))
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c"), graph.NewProperty("v", "c")))
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/z")))

	mv := graph.NewMoveBranch(graph.MustParsePath("/a/b"), graph.MustParsePath("/z"), "", graph.ConflictAppend)
	require.NoError(t, conn.Execute(ctx, mv))
	require.NoError(t, mv.Err())

	read := graph.NewReadProperties(graph.MustParsePath("/z/b/c"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, "c", read.Properties()["v"].First())

	del := graph.NewDeleteBranch(graph.MustParsePath("/z"))
	require.NoError(t, conn.Execute(ctx, del))
	require.NoError(t, del.Err())

	n, err := src.Store().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "root and /a remain")
}

func TestStore_ViewRejectsWrites(t *testing.T) {
	src, _ := open(t, filepath.Join(t.TempDir(), "ro.db"))
	err := src.Store().View(context.Background(), func(tx nodestore.Tx) error {
		return tx.Delete(graph.MustParsePath("/a"))
	})
	assert.ErrorIs(t, err, graph.ErrReadOnly)
}
