package federation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/internal/graph"
)

func TestNewSingleExecutor_RequiresOneRule(t *testing.T) {
	f := newFixture(t)
	_, err := NewSingleExecutor(f.registry, MustProjection("src", false, "/a => /x", "/b => /y"), f.env())
	assert.ErrorIs(t, err, ErrSingleRuleRequired)

	_, err = NewSingleExecutor(f.registry, nil, f.env())
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestSingleExecutor_ReadsAndWritesThroughTheRule(t *testing.T) {
	f := newFixture(t)
	src := f.source("src", 0, map[string][]graph.Property{
		"/content/guide": {graph.NewProperty("title", "Guide")},
	})
	e, err := NewSingleExecutor(f.registry, MustProjection("src", false, "/docs => /content"), f.env())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	n, err := e.GetNode(ctx, graph.MustParsePath("/docs/guide"))
	require.NoError(t, err)
	assert.Equal(t, "/docs/guide", n.Path.String())
	assert.Equal(t, "Guide", n.Properties["title"].First())
	assert.Equal(t, [][]string{{"/content/guide"}}, f.fetchesOf("src"))

	again, err := e.GetNode(ctx, graph.MustParsePath("/docs/guide"))
	require.NoError(t, err)
	assert.Equal(t, n.UUID, again.UUID, "identifiers are stable across reads")
	assert.Equal(t, uuid.NewSHA1(nodeNamespace, []byte("src:/docs/guide")), n.UUID)

	created, err := e.CreateNode(ctx, graph.MustParsePath("/docs"), "new", graph.ConflictAppend, graph.NewProperty("k", "v"))
	require.NoError(t, err)
	assert.Equal(t, "/docs/new", created.String())

	conn, err := src.Connect(ctx)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	read := graph.NewReadProperties(graph.MustParsePath("/content/new"))
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, "v", read.Properties()["k"].First())

	_, err = e.GetNode(ctx, graph.MustParsePath("/elsewhere"))
	assert.ErrorIs(t, err, ErrNotProjected)
}

func TestSingleExecutor_StoredIdentifierWins(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.source("src", 0, map[string][]graph.Property{
		"/n": {graph.NewProperty(graph.UUIDProperty, id.String())},
	})
	e, err := NewSingleExecutor(f.registry, MustProjection("src", false, identity...), f.env())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	n, err := e.GetNode(context.Background(), graph.MustParsePath("/n"))
	require.NoError(t, err)
	assert.Equal(t, id, n.UUID)
	_, leaked := n.Properties[graph.UUIDProperty]
	assert.False(t, leaked)
}

func TestSingleExecutor_PlaceholderAboveTopLevel(t *testing.T) {
	f := newFixture(t)
	f.source("src", 0, map[string][]graph.Property{"/sx": nil})
	e, err := NewSingleExecutor(f.registry, MustProjection("src", false, "/a/b => /sx"), f.env())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	root, err := e.GetNode(ctx, graph.Root)
	require.NoError(t, err)
	assert.Equal(t, []graph.Segment{graph.NewSegment("a")}, root.Children)

	kids, err := e.GetChildren(ctx, graph.MustParsePath("/a"))
	require.NoError(t, err)
	assert.Equal(t, []graph.Segment{graph.NewSegment("b")}, kids)
	assert.Empty(t, f.fetchesOf("src"), "placeholders are answered without the source")

	err = e.DeleteBranch(ctx, graph.MustParsePath("/a"))
	assert.ErrorIs(t, err, ErrNotProjected, "writes never get placeholders")
}

func TestSingleExecutor_ReadOnly(t *testing.T) {
	f := newFixture(t)
	f.source("src", 0, map[string][]graph.Property{"/n": nil})
	e, err := NewSingleExecutor(f.registry, MustProjection("src", true, identity...), f.env())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	_, err = e.GetNode(ctx, graph.MustParsePath("/n"))
	require.NoError(t, err)

	err = e.SetProperties(ctx, graph.MustParsePath("/n"), graph.NewProperty("k", "v"))
	assert.ErrorIs(t, err, graph.ErrReadOnly)
	_, err = e.CreateNode(ctx, graph.Root, "x", graph.ConflictAppend)
	assert.ErrorIs(t, err, graph.ErrReadOnly)
}

func TestSingleExecutor_Close(t *testing.T) {
	f := newFixture(t)
	f.source("src", 0, map[string][]graph.Property{"/n": nil})
	e, err := NewSingleExecutor(f.registry, MustProjection("src", false, identity...), f.env())
	require.NoError(t, err)

	_, err = e.GetNode(context.Background(), graph.MustParsePath("/n"))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, []string{"src"}, f.closes)

	_, err = e.GetNode(context.Background(), graph.MustParsePath("/n"))
	assert.ErrorIs(t, err, ErrExecutorClosed)
}

func TestNewSession_ChoosesExecutor(t *testing.T) {
	f := newFixture(t)
	f.source("cache", 0, nil)
	f.source("a", 0, nil)
	f.source("b", 0, nil)
	env := f.env()

	tests := []struct {
		name        string
		cache       *Projection
		projections []*Projection
		single      bool
	}{
		{"one source one rule", nil, []*Projection{MustProjection("a", false, identity...)}, true},
		{"cached", MustProjection("cache", false, identity...), []*Projection{MustProjection("a", false, identity...)}, false},
		{"two rules", nil, []*Projection{MustProjection("a", false, "/x => /", "/y => /")}, false},
		{"two sources", nil, []*Projection{MustProjection("a", false, identity...), MustProjection("b", false, identity...)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(f.registry, tt.cache, tt.projections, env)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			_, isSingle := s.(*SingleExecutor)
			assert.Equal(t, tt.single, isSingle)
		})
	}
}
