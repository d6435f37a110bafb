package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
)

type handler struct {
	sessions Sessions
	logger   *slog.Logger
}

// CreateRequest is the body of POST /v1/nodes/*path.
type CreateRequest struct {
	Name       string              `json:"name" binding:"required"`
	Conflict   string              `json:"conflict,omitempty"`
	Properties map[string][]string `json:"properties,omitempty"`
	Binary     []string            `json:"binary,omitempty"`
}

// PropertiesRequest is the body of PUT /v1/properties/*path. A property
// with no values is removed.
type PropertiesRequest struct {
	Properties map[string][]string `json:"properties" binding:"required"`
	Binary     []string            `json:"binary,omitempty"`
}

// RelocateRequest is the body of POST /v1/move/*path and /v1/copy/*path.
type RelocateRequest struct {
	Into     string `json:"into" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Conflict string `json:"conflict,omitempty"`
	// Shallow copies only the node, not its branch.
	Shallow bool `json:"shallow,omitempty"`
}

// run executes fn in a session and writes the error response, if any.
func (h *handler) run(c *gin.Context, fn func(ctx context.Context, s federation.Session, p graph.Path) error) {
	p, err := graph.ParsePath(c.Param("path"))
	if err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	if err := h.sessions.Do(c.Request.Context(), func(ctx context.Context, s federation.Session) error {
		return fn(ctx, s, p)
	}); err != nil {
		h.fail(c, err)
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "request failed",
		slog.String("path", c.Request.URL.Path), slog.Int("status", status), slog.Any("error", err))
	c.IndentedJSON(status, gin.H{"message": err.Error()})
}

func (h *handler) getNode(c *gin.Context) {
	depth := -2
	if q, ok := c.GetQuery("depth"); ok {
		d, err := strconv.Atoi(q)
		if err != nil || d < -1 {
			h.fail(c, badRequest("depth must be an integer >= -1"))
			return
		}
		depth = d
	}
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		if depth == -2 {
			n, err := s.GetNode(ctx, p)
			if err != nil {
				return err
			}
			c.IndentedJSON(http.StatusOK, api.NewNode(n))
			return nil
		}
		nodes, err := s.RecordBranch(ctx, p, depth)
		if err != nil {
			return err
		}
		out := make([]api.Node, len(nodes))
		for i, n := range nodes {
			out[i] = api.NewNode(n)
		}
		c.IndentedJSON(http.StatusOK, out)
		return nil
	})
}

func (h *handler) getChildren(c *gin.Context) {
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		children, err := s.GetChildren(ctx, p)
		if err != nil {
			return err
		}
		c.IndentedJSON(http.StatusOK, gin.H{"path": p.String(), "children": api.Segments(children)})
		return nil
	})
}

func (h *handler) getProperties(c *gin.Context) {
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		props, err := s.GetProperties(ctx, p)
		if err != nil {
			return err
		}
		values, binary := api.EncodeProperties(props)
		c.IndentedJSON(http.StatusOK, gin.H{"path": p.String(), "properties": values, "binary": binary})
		return nil
	})
}

func (h *handler) setProperties(c *gin.Context) {
	var req PropertiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	props, err := api.DecodeProperties(req.Properties, req.Binary)
	if err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		if err := s.SetProperties(ctx, p, props...); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}

func (h *handler) createNode(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	conflict, err := graph.ParseConflict(req.Conflict)
	if err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	props, err := api.DecodeProperties(req.Properties, req.Binary)
	if err != nil {
		h.fail(c, badRequest("%v", err))
		return
	}
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		created, err := s.CreateNode(ctx, p, req.Name, conflict, props...)
		if err != nil {
			return err
		}
		c.Header("Location", "/v1/nodes"+created.String())
		c.IndentedJSON(http.StatusCreated, gin.H{"path": created.String()})
		return nil
	})
}

func (h *handler) deleteBranch(c *gin.Context) {
	h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
		if err := s.DeleteBranch(ctx, p); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}

type relocateKind int

const (
	relocateMove relocateKind = iota
	relocateCopy
)

func (h *handler) relocate(kind relocateKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RelocateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, badRequest("%v", err))
			return
		}
		into, err := graph.ParsePath(req.Into)
		if err != nil {
			h.fail(c, badRequest("%v", err))
			return
		}
		conflict, err := graph.ParseConflict(req.Conflict)
		if err != nil {
			h.fail(c, badRequest("%v", err))
			return
		}
		h.run(c, func(ctx context.Context, s federation.Session, p graph.Path) error {
			var dst graph.Path
			switch {
			case kind == relocateMove:
				dst, err = s.MoveBranch(ctx, p, into, req.Name, conflict)
			case req.Shallow:
				dst, err = s.CopyNode(ctx, p, into, req.Name, conflict)
			default:
				dst, err = s.CopyBranch(ctx, p, into, req.Name, conflict)
			}
			if err != nil {
				return err
			}
			c.IndentedJSON(http.StatusOK, gin.H{"path": dst.String()})
			return nil
		})
	}
}
