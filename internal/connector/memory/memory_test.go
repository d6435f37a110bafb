package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/graph"
)

func connect(t *testing.T) (*Source, connector.Connection) {
	t.Helper()
	src := NewSource("mem", graph.CachePolicy{})
	conn, err := src.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return src, conn
}

func TestSource_RootAlwaysExists(t *testing.T) {
	_, conn := connect(t)
	read := graph.NewReadNode(graph.Root)
	require.NoError(t, conn.Execute(context.Background(), read))
	require.NoError(t, read.Err())
	assert.Empty(t, read.Children())
}

func TestSource_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	_, conn := connect(t)

	create := graph.NewCreateNode(graph.Root, "a", graph.ConflictAppend, graph.NewProperty("color", "red"))
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())
	actual, ok := create.ActualPath()
	require.True(t, ok)
	assert.Equal(t, "/a", actual.String())

	read := graph.NewReadNode(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, "red", read.Properties()["color"].First())

	root := graph.NewReadChildren(graph.Root)
	require.NoError(t, conn.Execute(ctx, root))
	assert.Equal(t, []graph.Segment{graph.NewSegment("a")}, root.Children())
}

func TestSource_CreateNamesFirstAndLaterSiblings(t *testing.T) {
	ctx := context.Background()
	_, conn := connect(t)

	var got []string
	for range 2 {
		create := graph.NewCreateNode(graph.Root, "a", graph.ConflictAppend)
		require.NoError(t, conn.Execute(ctx, create))
		require.NoError(t, create.Err())
		actual, ok := create.ActualPath()
		require.True(t, ok)
		got = append(got, actual.String())
	}
	assert.Equal(t, []string{"/a", "/a[2]"}, got)

	root := graph.NewReadChildren(graph.Root)
	require.NoError(t, conn.Execute(ctx, root))
	require.NoError(t, root.Err())
	assert.Equal(t, []graph.Segment{graph.NewSegment("a"), {Name: "a", Index: 2}}, root.Children())
}

func TestSource_ConflictBehaviors(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b"), graph.NewProperty("k", "v1")))

	tests := []struct {
		name     string
		conflict graph.ConflictBehavior
		wantPath string
		wantK    string
	}{
		{"do not replace keeps node", graph.ConflictDoNotReplace, "/a/b", "v1"},
		{"update overwrites properties", graph.ConflictUpdate, "/a/b", "v2"},
		{"append adds sibling", graph.ConflictAppend, "/a/b[2]", "v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			create := graph.NewCreateNode(graph.MustParsePath("/a"), "b", tt.conflict, graph.NewProperty("k", "v2"))
			require.NoError(t, conn.Execute(ctx, create))
			require.NoError(t, create.Err())
			actual, _ := create.ActualPath()
			assert.Equal(t, tt.wantPath, actual.String())

			read := graph.NewReadProperties(actual)
			require.NoError(t, conn.Execute(ctx, read))
			assert.Equal(t, tt.wantK, read.Properties()["k"].First())
		})
	}
}

func TestSource_ReplaceDropsDescendants(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c")))

	create := graph.NewCreateNode(graph.MustParsePath("/a"), "b", graph.ConflictReplace)
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())

	read := graph.NewReadNode(graph.MustParsePath("/a/b/c"))
	require.NoError(t, conn.Execute(ctx, read))
	var nf *graph.PathNotFoundError
	require.True(t, errors.As(read.Err(), &nf))
	assert.Equal(t, "/a/b", nf.LowestExisting.String())
}

func TestSource_PathNotFoundReportsLowestAncestor(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a")))

	read := graph.NewReadNode(graph.MustParsePath("/a/x/y"))
	require.NoError(t, conn.Execute(ctx, read))
	require.ErrorIs(t, read.Err(), graph.ErrNotFound)
	var nf *graph.PathNotFoundError
	require.True(t, errors.As(read.Err(), &nf))
	assert.Equal(t, "/a", nf.LowestExisting.String())
}

func TestSource_UpdatePropertiesRemovesEmpty(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	p := graph.MustParsePath("/n")
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), p, graph.NewProperty("a", "1"), graph.NewProperty("b", "2")))

	update := graph.NewUpdateProperties(p, graph.NewProperty("a", "x"), graph.Property{Name: "b"})
	require.NoError(t, conn.Execute(ctx, update))
	require.NoError(t, update.Err())

	read := graph.NewReadProperties(p)
	require.NoError(t, conn.Execute(ctx, read))
	assert.Equal(t, "x", read.Properties()["a"].First())
	_, has := read.Properties()["b"]
	assert.False(t, has)
}

func TestSource_DeleteBranch(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c")))
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/d")))

	del := graph.NewDeleteBranch(graph.MustParsePath("/a/b"))
	require.NoError(t, conn.Execute(ctx, del))
	require.NoError(t, del.Err())

	children := graph.NewReadChildren(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, children))
	assert.Equal(t, []graph.Segment{graph.NewSegment("d")}, children.Children())
	// root, /a, /a/d
	assert.Equal(t, 3, src.Store().Len())

	root := graph.NewDeleteBranch(graph.Root)
	require.NoError(t, conn.Execute(ctx, root))
	assert.ErrorIs(t, root.Err(), graph.ErrRootOperation)
}

func TestSource_MoveAndCopyBranch(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c"), graph.NewProperty("v", "c")))
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/z")))

	cp := graph.NewCopyBranch(graph.MustParsePath("/a/b"), graph.MustParsePath("/z"), "", graph.ConflictAppend)
	require.NoError(t, conn.Execute(ctx, cp))
	require.NoError(t, cp.Err())

	mv := graph.NewMoveBranch(graph.MustParsePath("/a/b"), graph.MustParsePath("/z"), "moved", graph.ConflictAppend)
	require.NoError(t, conn.Execute(ctx, mv))
	require.NoError(t, mv.Err())
	actual, _ := mv.ActualPath()
	assert.Equal(t, "/z/moved", actual.String())

	for _, p := range []string{"/z/b/c", "/z/moved/c"} {
		read := graph.NewReadProperties(graph.MustParsePath(p))
		require.NoError(t, conn.Execute(ctx, read))
		require.NoError(t, read.Err(), p)
		assert.Equal(t, "c", read.Properties()["v"].First())
	}

	gone := graph.NewReadNode(graph.MustParsePath("/a/b"))
	require.NoError(t, conn.Execute(ctx, gone))
	assert.ErrorIs(t, gone.Err(), graph.ErrNotFound)

	into := graph.NewMoveBranch(graph.MustParsePath("/z"), graph.MustParsePath("/z/b"), "", graph.ConflictAppend)
	require.NoError(t, conn.Execute(ctx, into))
	assert.ErrorIs(t, into.Err(), graph.ErrInvalidTarget)
}

func TestSource_CopyNodeSkipsChildren(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b"), graph.NewProperty("v", "1")))

	cp := graph.NewCopyNode(graph.MustParsePath("/a"), graph.Root, "a2", graph.ConflictAppend)
	require.NoError(t, conn.Execute(ctx, cp))
	require.NoError(t, cp.Err())

	read := graph.NewReadNode(graph.MustParsePath("/a2"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Empty(t, read.Children())
}

func TestSource_PutNodeReconcilesChildren(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/old/deep")))

	put := graph.NewPutNode(graph.MustParsePath("/a"),
		[]graph.Property{graph.NewProperty("p", "1")},
		[]graph.Segment{graph.NewSegment("x"), graph.NewSegment("y")})
	require.NoError(t, conn.Execute(ctx, put))
	require.NoError(t, put.Err())

	read := graph.NewReadNode(graph.MustParsePath("/a"))
	require.NoError(t, conn.Execute(ctx, read))
	assert.Equal(t, []graph.Segment{graph.NewSegment("x"), graph.NewSegment("y")}, read.Children())
	assert.Equal(t, "1", read.Properties()["p"].First())

	old := graph.NewReadNode(graph.MustParsePath("/a/old/deep"))
	require.NoError(t, conn.Execute(ctx, old))
	assert.ErrorIs(t, old.Err(), graph.ErrNotFound)

	placeholder := graph.NewReadNode(graph.MustParsePath("/a/x"))
	require.NoError(t, conn.Execute(ctx, placeholder))
	require.NoError(t, placeholder.Err())
	assert.Empty(t, placeholder.Properties())
}

func TestSource_ReadBranchDepth(t *testing.T) {
	ctx := context.Background()
	src, conn := connect(t)
	require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath("/a/b/c/d")))

	shallow := graph.NewReadBranch(graph.MustParsePath("/a"), 1)
	require.NoError(t, conn.Execute(ctx, shallow))
	require.NoError(t, shallow.Err())
	assert.Len(t, shallow.Nodes(), 2)

	all := graph.NewReadBranch(graph.MustParsePath("/a"), -1)
	require.NoError(t, conn.Execute(ctx, all))
	assert.Len(t, all.Nodes(), 4)
}

func TestSource_ClosedConnectionRejectsCommands(t *testing.T) {
	_, conn := connect(t)
	require.NoError(t, conn.Close())
	err := conn.Execute(context.Background(), graph.NewReadNode(graph.Root))
	assert.ErrorIs(t, err, connector.ErrClosed)
	// Second close is a no-op.
	assert.NoError(t, conn.Close())
}

func TestSource_BatchStopsOnCancel(t *testing.T) {
	_, conn := connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, b := graph.NewReadNode(graph.Root), graph.NewReadNode(graph.Root)
	err := conn.ExecuteBatch(ctx, []graph.Command{a, b})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, a.Err(), context.Canceled)
	assert.ErrorIs(t, b.Err(), context.Canceled)
}
