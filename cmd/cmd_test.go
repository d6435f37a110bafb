package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/memory"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/logging"
)

// writeConfig lays out a sqlite cache over a read-only json catalog.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalog,
		[]byte(`{"catalog": {"title": "Books", "shelf": {"n": "1", "tags": ["a", "b"]}}}`), 0o644))

	cfg := "name: books\n" +
		"cache:\n  source: cache\n" +
		"sources:\n" +
		"  - name: cache\n    kind: sqlite\n    path: " + filepath.Join(dir, "cache.db") + "\n" +
		"  - name: catalog\n    kind: json\n    path: " + catalog + "\n    selector: $.catalog\n" +
		"projections:\n" +
		"  - source: catalog\n    rules: [\"/ => /\"]\n    read_only: true\n"
	path := filepath.Join(dir, "fedgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", config, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, cfg, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "federation books: 2 sources")
	assert.Contains(t, out, "cache cache")
	assert.Contains(t, out, "projection catalog (read-only) {")

	_, err = run(t, filepath.Join(t.TempDir(), "missing.yaml"), "validate")
	assert.Error(t, err)
}

func TestLsAndGet(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "ls")
	require.NoError(t, err)
	assert.Equal(t, "shelf\n", out)

	out, err = run(t, cfg, "get", "/shelf")
	require.NoError(t, err)
	var n api.Node
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	assert.Equal(t, "/shelf", n.Path)
	assert.Equal(t, []string{"1"}, n.Properties["n"])

	out, err = run(t, cfg, "get", "/", "--depth", "1")
	require.NoError(t, err)
	var branch []api.Node
	require.NoError(t, json.Unmarshal([]byte(out), &branch))
	require.Len(t, branch, 2)
	assert.Equal(t, "/", branch[0].Path)
	assert.Equal(t, "/shelf", branch[1].Path)

	_, err = run(t, cfg, "get", "/nowhere")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestProps(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, cfg, "props", "/shelf")
	require.NoError(t, err)
	assert.Equal(t, "n=1\ntags=a\ntags=b\n", out)

	_, err = run(t, cfg, "props", "/shelf", "n=2")
	assert.Error(t, err, "the catalog is read-only")

	_, err = run(t, cfg, "props", "/shelf", "novalue")
	assert.Error(t, err)
}

func TestWarm(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, cfg, "warm")
	require.NoError(t, err)
	assert.Equal(t, "warmed 2 nodes\n", out)
}

func TestParseAssignments(t *testing.T) {
	props, err := parseAssignments([]string{"a=1", "b=", "a=2", "c=x=y"})
	require.NoError(t, err)
	require.Len(t, props, 3)
	assert.Equal(t, graph.NewProperty("a", "1", "2"), props[0])
	assert.Equal(t, graph.NewProperty("b", ""), props[1])
	assert.Equal(t, graph.NewProperty("c", "x=y"), props[2])

	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{graph.UUIDProperty + "=x"})
	assert.Error(t, err)
}

func TestWarmParallel(t *testing.T) {
	ctx := context.Background()
	src := memory.NewSource("docs", graph.CachePolicy{})
	for _, p := range []string{"/a/x", "/a/y", "/b", "/c/z"} {
		require.NoError(t, nodestore.Ensure(ctx, src.Store(), graph.MustParsePath(p)))
	}
	reg := connector.NewRegistry(logging.Discard())
	reg.Register(src)
	repo, err := federation.NewRepository("docs", reg, nil,
		[]*federation.Projection{federation.MustProjection("docs", false, "/ => /")},
		federation.Environment{Logger: logging.Discard()})
	require.NoError(t, err)

	paths := []graph.Path{graph.MustParsePath("/a"), graph.MustParsePath("/b"), graph.MustParsePath("/c")}
	n, err := warm(ctx, repo, paths, -1, 2, logging.Discard())
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	_, err = warm(ctx, repo, []graph.Path{graph.MustParsePath("/missing")}, -1, 0, logging.Discard())
	assert.ErrorIs(t, err, graph.ErrNotFound)
}
