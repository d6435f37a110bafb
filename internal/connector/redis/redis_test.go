package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/logging"
)

func start(t *testing.T, prefix string) (*miniredis.Miniredis, *Source, connector.Connection) {
	t.Helper()
	mr := miniredis.RunT(t)
	src, err := NewSource("kv", Options{Address: mr.Addr(), Prefix: prefix}, graph.CachePolicy{}, logging.Discard())
	require.NoError(t, err)
	conn, err := src.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = src.Close()
	})
	return mr, src, conn
}

func TestSource_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	mr, src, conn := start(t, "repo1:")

	create := graph.NewCreateNode(graph.Root, "a", graph.ConflictAppend, graph.NewProperty("color", "red"))
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())

	read := graph.NewReadNode(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, "red", read.Properties()["color"].First())

	assert.True(t, mr.Exists("repo1:node:/a"))
	assert.True(t, mr.Exists("repo1:node:/"))
	n, err := src.Store().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSource_PrefixesIsolateRepositories(t *testing.T) {
	ctx := context.Background()
	mr, a, _ := start(t, "a:")
	b, err := NewSource("b", Options{Address: mr.Addr(), Prefix: "b:"}, graph.CachePolicy{}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, nodestore.Ensure(ctx, a.Store(), graph.MustParsePath("/only-in-a")))

	conn, err := b.Connect(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	read := graph.NewReadNode(graph.MustParsePath("/only-in-a"))
	require.NoError(t, conn.Execute(ctx, read))
	assert.ErrorIs(t, read.Err(), graph.ErrNotFound)
}

func TestStore_FailedUpdateWritesNothing(t *testing.T) {
	ctx := context.Background()
	mr, src, _ := start(t, "")
	boom := errors.New("boom")

	err := src.Store().Update(ctx, func(tx nodestore.Tx) error {
		r, err := nodestore.Unmarshal([]byte(`{"path":"/ghost"}`))
		if err != nil {
			return err
		}
		if err := tx.Put(r); err != nil {
			return err
		}
		got, err := tx.Get(graph.MustParsePath("/ghost"))
		if err != nil {
			return err
		}
		if !got.Path.Equal(r.Path) {
			return errors.New("buffered write not visible")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestSource_DeleteBranchRemovesKeys(t *testing.T) {
	ctx := context.Background()
	mr, src, conn := start(t, "")
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c")))
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/d")))

	del := graph.NewDeleteBranch(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, del))
	require.NoError(t, del.Err())

	assert.ElementsMatch(t, []string{"node:/", "node:/d"}, mr.Keys())
}

func TestSource_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	src, err := NewSource("kv", Options{Address: mr.Addr()}, graph.CachePolicy{}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	mr.Close()

	_, err = src.Connect(context.Background())
	assert.ErrorIs(t, err, connector.ErrSourceUnavailable)
}

func TestOptions_URL(t *testing.T) {
	co, err := Options{URL: "redis://:secret@example.com:6380/2"}.clientOptions()
	require.NoError(t, err)
	assert.Equal(t, "example.com:6380", co.Addr)
	assert.Equal(t, 2, co.DB)
	assert.Equal(t, "secret", co.Password)

	_, err = Options{URL: "http://nope"}.clientOptions()
	assert.Error(t, err)

	co, err = Options{}.clientOptions()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", co.Addr)
}
