package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/connector/memory"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/logging"
)

const hclConfig = `
name                = "docs"
no_contribution_ttl = "30s"

cache {
  source = "cache"
}

source "cache" {
  kind = "memory"
}

source "primary" {
  kind = "memory"
  ttl  = "10m"
}

source "catalog" {
  kind     = "json"
  path     = "catalog.json"
  selector = "$.catalog"
}

projection "primary" {
  rules = ["/ => /"]
}

projection "catalog" {
  rules     = ["/catalog => / $ internal"]
  read_only = true
}
`

const yamlConfig = `
name: docs
no_contribution_ttl: 30s
cache:
  source: cache
sources:
  - name: cache
    kind: memory
  - name: primary
    kind: memory
    ttl: 10m
  - name: catalog
    kind: json
    path: catalog.json
    selector: $.catalog
projections:
  - source: primary
    rules: ["/ => /"]
  - source: catalog
    rules: ["/catalog => / $ internal"]
    read_only: true
`

const jsonConfig = `{
  "name": "docs",
  "no_contribution_ttl": "30s",
  "cache": {"source": "cache"},
  "sources": [
    {"name": "cache", "kind": "memory"},
    {"name": "primary", "kind": "memory", "ttl": "10m"},
    {"name": "catalog", "kind": "json", "path": "catalog.json", "selector": "$.catalog"}
  ],
  "projections": [
    {"source": "primary", "rules": ["/ => /"]},
    {"source": "catalog", "rules": ["/catalog => / $ internal"], "read_only": true}
  ]
}`

func TestParse_FormatsAgree(t *testing.T) {
	for file, data := range map[string]string{
		"fed.hcl":  hclConfig,
		"fed.yaml": yamlConfig,
		"fed.json": jsonConfig,
	} {
		t.Run(file, func(t *testing.T) {
			fed, err := Parse(file, []byte(data))
			require.NoError(t, err)
			assert.Equal(t, "docs", fed.Name)
			assert.Equal(t, "30s", fed.NoContributionTTL)
			require.NotNil(t, fed.Cache)
			assert.Equal(t, "cache", fed.Cache.Source)
			require.Len(t, fed.Sources, 3)
			assert.Equal(t, api.Source{Name: "catalog", Kind: KindJSON, Path: "catalog.json", Selector: "$.catalog"}, fed.Sources[2])
			require.Len(t, fed.Projections, 2)
			assert.Equal(t, api.Projection{Source: "catalog", Rules: []string{"/catalog => / $ internal"}, ReadOnly: true}, fed.Projections[1])
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse("fed.toml", []byte(""))
	assert.Error(t, err)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse("fed.yaml", []byte("name: x\nbogus: 1\n"))
	assert.Error(t, err)
	_, err = Parse("fed.json", []byte(`{"name":"x","bogus":1}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *api.Federation {
		return &api.Federation{
			Name:    "r",
			Cache:   &api.Cache{Source: "c"},
			Sources: []api.Source{{Name: "c", Kind: KindMemory}, {Name: "s", Kind: KindMemory}},
			Projections: []api.Projection{
				{Source: "s", Rules: []string{"/ => /"}},
			},
		}
	}
	require.NoError(t, Validate(valid()))

	tests := map[string]func(f *api.Federation){
		"no name":           func(f *api.Federation) { f.Name = "" },
		"bad ttl":           func(f *api.Federation) { f.NoContributionTTL = "soon" },
		"negative ttl":      func(f *api.Federation) { f.Sources[1].TTL = "-1s" },
		"unknown kind":      func(f *api.Federation) { f.Sources[1].Kind = "ftp" },
		"duplicate source":  func(f *api.Federation) { f.Sources = append(f.Sources, api.Source{Name: "s", Kind: KindMemory}) },
		"missing path":      func(f *api.Federation) { f.Sources[1].Kind = KindSQLite },
		"unknown cache":     func(f *api.Federation) { f.Cache.Source = "nope" },
		"bad cache rule":    func(f *api.Federation) { f.Cache.Rules = []string{"nonsense"} },
		"no projections":    func(f *api.Federation) { f.Projections = nil },
		"unknown projected": func(f *api.Federation) { f.Projections[0].Source = "nope" },
		"projected twice":   func(f *api.Federation) { f.Projections = append(f.Projections, f.Projections[0]) },
		"cache projected":   func(f *api.Federation) { f.Projections[0].Source = "c" },
		"no rules":          func(f *api.Federation) { f.Projections[0].Rules = nil },
		"bad rule":          func(f *api.Federation) { f.Projections[0].Rules = []string{"/a /b"} },
		"json cache": func(f *api.Federation) {
			f.Sources[0] = api.Source{Name: "c", Kind: KindJSON, Path: "x.json"}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			f := valid()
			mutate(f)
			assert.ErrorIs(t, Validate(f), ErrInvalid)
		})
	}
}

func TestLoadAndBuild(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.json"),
		[]byte(`{"catalog": {"title": "Books", "internal": {"secret": "x"}, "shelf": {"n": 1}}}`), 0o644))
	cfg := filepath.Join(dir, "fed.hcl")
	require.NoError(t, os.WriteFile(cfg, []byte(hclConfig), 0o644))

	fed, err := Load(cfg)
	require.NoError(t, err)
	fed.Sources[2].Path = filepath.Join(dir, "catalog.json")

	built, err := Build(context.Background(), fed, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = built.Close() })

	primary := built.Factories["primary"].(*memory.Source)
	require.NoError(t, nodestore.Ensure(context.Background(), primary.Store(), graph.MustParsePath("/guide"),
		graph.NewProperty("title", "Guide")))

	assert.Equal(t, []string{"primary", "catalog"}, built.Repository.SourceNames())
	assert.Equal(t, []string{"cache", "catalog", "primary"}, built.Registry.Names())

	err = built.Repository.Do(context.Background(), func(ctx context.Context, s federation.Session) error {
		root, err := s.GetChildren(ctx, graph.Root)
		require.NoError(t, err)
		assert.Equal(t, []graph.Segment{graph.NewSegment("guide"), graph.NewSegment("catalog")}, root)

		catalog, err := s.GetNode(ctx, graph.MustParsePath("/catalog"))
		require.NoError(t, err)
		assert.Equal(t, "Books", catalog.Properties["title"].First())
		assert.Equal(t, []graph.Segment{graph.NewSegment("shelf")}, catalog.Children, "exceptions are hidden")

		// The writable primary source owns every path, the catalog included.
		err = s.SetProperties(ctx, graph.MustParsePath("/catalog"), graph.NewProperty("title", "x"))
		assert.ErrorIs(t, err, graph.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestBuild_SQLiteSource(t *testing.T) {
	dir := t.TempDir()
	fed := &api.Federation{
		Name:              "db",
		NoContributionTTL: "5s",
		Sources:           []api.Source{{Name: "db", Kind: KindSQLite, Path: filepath.Join(dir, "nodes.db"), TTL: "1m"}},
		Projections:       []api.Projection{{Source: "db", Rules: []string{"/data => /"}}},
	}
	require.NoError(t, Validate(fed))
	built, err := Build(context.Background(), fed, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = built.Close() })

	err = built.Repository.Do(context.Background(), func(ctx context.Context, s federation.Session) error {
		_, isSingle := s.(*federation.SingleExecutor)
		assert.True(t, isSingle)
		created, err := s.CreateNode(ctx, graph.MustParsePath("/data"), "row", graph.ConflictAppend, graph.NewProperty("k", "v"))
		if err != nil {
			return err
		}
		assert.Equal(t, "/data/row", created.String())
		props, err := s.GetProperties(ctx, created)
		if err != nil {
			return err
		}
		assert.Equal(t, "v", props["k"].First())
		return nil
	})
	require.NoError(t, err)
}

func TestDuration(t *testing.T) {
	d, err := duration("")
	require.NoError(t, err)
	assert.Zero(t, d)
	d, err = duration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}
