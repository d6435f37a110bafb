// Package mcpserver exposes a federated repository as Model Context
// Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Sessions runs fn in a fresh session. *federation.Repository satisfies
// it.
type Sessions interface {
	Do(ctx context.Context, fn func(ctx context.Context, s federation.Session) error) error
}

// Server registers the repository tools on an MCP server.
type Server struct {
	sessions Sessions
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New creates the MCP server named name with the get_node, list_children
// and set_property tools.
func New(name, version string, sessions Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		logger:   logger,
		mcp:      server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Read a node of the federated tree: its identifier, properties and child names."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute node path, e.g. /docs/guide or /items/item[2]")),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the child names of a node."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute node path")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("set_property",
		mcp.WithDescription("Set a single-valued property on a node, or remove it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute node path")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Property name")),
		mcp.WithString("value", mcp.Description("New value; ignored when remove is true")),
		mcp.WithBoolean("remove", mcp.Description("Remove the property instead of setting it")),
	), s.setProperty)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errResult := pathArg(req)
	if errResult != nil {
		return errResult, nil
	}
	var out api.Node
	if err := s.sessions.Do(ctx, func(ctx context.Context, sess federation.Session) error {
		n, err := sess.GetNode(ctx, p)
		if err != nil {
			return err
		}
		out = api.NewNode(n)
		return nil
	}); err != nil {
		return s.toolError("get_node", p, err)
	}
	return jsonResult(out)
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errResult := pathArg(req)
	if errResult != nil {
		return errResult, nil
	}
	var children []string
	if err := s.sessions.Do(ctx, func(ctx context.Context, sess federation.Session) error {
		segs, err := sess.GetChildren(ctx, p)
		if err != nil {
			return err
		}
		children = api.Segments(segs)
		return nil
	}); err != nil {
		return s.toolError("list_children", p, err)
	}
	return jsonResult(children)
}

func (s *Server) setProperty(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, errResult := pathArg(req)
	if errResult != nil {
		return errResult, nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if graph.IsReserved(name) {
		return mcp.NewToolResultError(fmt.Sprintf("property %s is reserved", name)), nil
	}
	prop := graph.Property{Name: name}
	if !req.GetBool("remove", false) {
		prop = graph.NewProperty(name, req.GetString("value", ""))
	}
	if err := s.sessions.Do(ctx, func(ctx context.Context, sess federation.Session) error {
		return sess.SetProperties(ctx, p, prop)
	}); err != nil {
		return s.toolError("set_property", p, err)
	}
	if prop.IsEmpty() {
		return mcp.NewToolResultText(fmt.Sprintf("removed %s from %s", name, p)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("set %s on %s", name, p)), nil
}

func pathArg(req mcp.CallToolRequest) (graph.Path, *mcp.CallToolResult) {
	raw, err := req.RequireString("path")
	if err != nil {
		return graph.Root, mcp.NewToolResultError(err.Error())
	}
	p, err := graph.ParsePath(raw)
	if err != nil {
		return graph.Root, mcp.NewToolResultError(err.Error())
	}
	return p, nil
}

// toolError reports request failures to the client as tool errors; only
// context cancellation is a protocol error.
func (s *Server) toolError(tool string, p graph.Path, err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	s.logger.Debug("tool failed", slog.String("tool", tool), slog.String("path", p.String()), slog.Any("error", err))
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
