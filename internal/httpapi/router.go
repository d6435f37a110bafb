// Package httpapi exposes a federated repository over a REST API built on
// gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Sessions runs fn in a fresh session. *federation.Repository satisfies
// it.
type Sessions interface {
	Do(ctx context.Context, fn func(ctx context.Context, s federation.Session) error) error
}

// Options configure the router.
type Options struct {
	Logger *slog.Logger
	// Gatherer backs GET /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
}

var errBadRequest = errors.New("bad request")

// NewRouter builds the gin engine serving the /v1 routes.
func NewRouter(sessions Sessions, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{sessions: sessions, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	v1 := router.Group("/v1")
	{
		v1.GET("/nodes/*path", h.getNode)
		v1.POST("/nodes/*path", h.createNode)
		v1.DELETE("/nodes/*path", h.deleteBranch)
		v1.GET("/children/*path", h.getChildren)
		v1.GET("/properties/*path", h.getProperties)
		v1.PUT("/properties/*path", h.setProperties)
		v1.POST("/move/*path", h.relocate(relocateMove))
		v1.POST("/copy/*path", h.relocate(relocateCopy))
	}
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogAttrs(c.Request.Context(), slog.LevelDebug, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// statusOf maps federation errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, graph.ErrInvalidTarget),
		errors.Is(err, graph.ErrRootOperation):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, graph.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, federation.ErrNoOwningSource),
		errors.Is(err, federation.ErrNotProjected),
		errors.Is(err, federation.ErrCrossSource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, connector.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
