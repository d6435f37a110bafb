package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/connector/memory"
	"github.com/agentic-research/fedgraph/internal/connector/nodestore"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/logging"
	"github.com/agentic-research/fedgraph/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter serves a writable "docs" source and a read-only "extra"
// source, both projected at the root, behind a memory cache.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	ctx := context.Background()
	cache := memory.NewSource("cache", graph.CachePolicy{})
	docs := memory.NewSource("docs", graph.CachePolicy{})
	extra := memory.NewSource("extra", graph.CachePolicy{})
	require.NoError(t, nodestore.Ensure(ctx, docs.Store(), graph.MustParsePath("/guide"), graph.NewProperty("title", "Guide")))
	require.NoError(t, nodestore.Ensure(ctx, extra.Store(), graph.MustParsePath("/guide"), graph.NewProperty("tags", "a", "b")))
	require.NoError(t, nodestore.Ensure(ctx, extra.Store(), graph.MustParsePath("/notes")))

	reg := connector.NewRegistry(logging.Discard())
	reg.Register(cache)
	reg.Register(docs)
	reg.Register(extra)

	promReg := prometheus.NewPedanticRegistry()
	rec, err := metrics.New(promReg)
	require.NoError(t, err)

	repo, err := federation.NewRepository("test", reg, federation.MustProjection("cache", false, "/ => /"), []*federation.Projection{
		federation.MustProjection("docs", false, "/ => /"),
		federation.MustProjection("extra", true, "/ => /"),
	}, federation.Environment{Logger: logging.Discard(), Metrics: rec})
	require.NoError(t, err)
	return NewRouter(repo, Options{Logger: logging.Discard(), Gatherer: promReg})
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestGetNode(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/v1/nodes/guide", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	n := decode[api.Node](t, w)
	assert.Equal(t, "/guide", n.Path)
	assert.Equal(t, []string{"Guide"}, n.Properties["title"])
	assert.Equal(t, []string{"a", "b"}, n.Properties["tags"])
	assert.NotEmpty(t, n.UUID)
	assert.Empty(t, n.Children)

	w = do(t, router, http.MethodGet, "/v1/nodes/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"guide", "notes"}, decode[api.Node](t, w).Children)
}

func TestGetNode_Branch(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/v1/nodes/?depth=1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	nodes := decode[[]api.Node](t, w)
	var paths []string
	for _, n := range nodes {
		paths = append(paths, n.Path)
	}
	assert.Equal(t, []string{"/", "/guide", "/notes"}, paths)

	w = do(t, router, http.MethodGet, "/v1/nodes/?depth=deep", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNode_Errors(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/v1/nodes/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["message"], "not found")

	w = do(t, router, http.MethodGet, "/v1/nodes/bad%5Bx%5D", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChildrenAndProperties(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/v1/children/", "")
	require.Equal(t, http.StatusOK, w.Code)
	children := decode[struct {
		Path     string   `json:"path"`
		Children []string `json:"children"`
	}](t, w)
	assert.Equal(t, "/", children.Path)
	assert.Equal(t, []string{"guide", "notes"}, children.Children)

	w = do(t, router, http.MethodGet, "/v1/properties/guide", "")
	require.Equal(t, http.StatusOK, w.Code)
	props := decode[struct {
		Properties map[string][]string `json:"properties"`
	}](t, w)
	assert.Equal(t, map[string][]string{"title": {"Guide"}, "tags": {"a", "b"}}, props.Properties)
}

func TestSetProperties(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPut, "/v1/properties/guide", `{"properties": {"title": ["Handbook"], "blob": ["/wA="]}, "binary": ["blob"]}`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/v1/nodes/guide", "")
	n := decode[api.Node](t, w)
	assert.Equal(t, []string{"Handbook"}, n.Properties["title"])
	assert.Equal(t, []string{"/wA="}, n.Properties["blob"])
	assert.Equal(t, []string{"blob"}, n.Binary)

	w = do(t, router, http.MethodPut, "/v1/properties/guide", `{"properties": {"title": []}}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, "/v1/properties/guide", "")
	_, ok := decode[struct {
		Properties map[string][]string `json:"properties"`
	}](t, w).Properties["title"]
	assert.False(t, ok, "an empty value list removes the property")

	w = do(t, router, http.MethodPut, "/v1/properties/guide", `{"nope": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPut, "/v1/properties/guide", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndDelete(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/v1/nodes/guide", `{"name": "intro", "properties": {"text": ["hello"]}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/v1/nodes/guide/intro", w.Header().Get("Location"))
	assert.Equal(t, "/guide/intro", decode[map[string]string](t, w)["path"])

	w = do(t, router, http.MethodPost, "/v1/nodes/guide", `{"name": "intro"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/guide/intro[2]", decode[map[string]string](t, w)["path"], "append adds a same-name sibling")

	w = do(t, router, http.MethodPost, "/v1/nodes/guide", `{"name": "intro", "conflict": "sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, router, http.MethodPost, "/v1/nodes/guide", `{"conflict": "append"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is required")

	w = do(t, router, http.MethodGet, "/v1/properties/guide/intro", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodDelete, "/v1/nodes/guide/intro", "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = do(t, router, http.MethodGet, "/v1/children/guide", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"intro[2]"}, decode[struct {
		Children []string `json:"children"`
	}](t, w).Children, "sibling indexes are stable")
}

func TestMoveAndCopy(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/v1/nodes/", `{"name": "drafts"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, router, http.MethodPost, "/v1/nodes/drafts", `{"name": "one", "properties": {"k": ["v"]}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/v1/copy/drafts/one", `{"into": "/", "name": "copy"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/copy", decode[map[string]string](t, w)["path"])

	w = do(t, router, http.MethodPost, "/v1/move/drafts/one", `{"into": "/", "name": "final"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/final", decode[map[string]string](t, w)["path"])

	w = do(t, router, http.MethodGet, "/v1/properties/final", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, "/v1/nodes/drafts/one", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/v1/move/final", `{"into": "/nowhere[x]", "name": "y"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadOnlyOwner(t *testing.T) {
	router := newTestRouter(t)

	// /notes exists only in the read-only source; the writable one maps
	// the path but does not have it.
	w := do(t, router, http.MethodPut, "/v1/properties/notes", `{"properties": {"x": ["1"]}}`)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{graph.ErrNotFound, http.StatusNotFound},
		{graph.NotFound(graph.Root, graph.Root), http.StatusNotFound},
		{graph.ErrAlreadyExists, http.StatusConflict},
		{graph.ErrReadOnly, http.StatusForbidden},
		{graph.ErrInvalidTarget, http.StatusBadRequest},
		{graph.ErrRootOperation, http.StatusBadRequest},
		{badRequest("x"), http.StatusBadRequest},
		{graph.ErrUnsupported, http.StatusNotImplemented},
		{federation.ErrNoOwningSource, http.StatusUnprocessableEntity},
		{federation.ErrCrossSource, http.StatusUnprocessableEntity},
		{connector.ErrSourceUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestMetricsAndHealth(t *testing.T) {
	router := newTestRouter(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/nodes/guide", "").Code)
	w := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fedgraph_")

	w = do(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
