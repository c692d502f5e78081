// Package mcp exposes the engine to AI assistants as MCP tools over stdio.
package mcp

import (
	"encoding/json"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/engine"
)

// Version is reported to MCP clients during initialize.
const Version = "0.1.0"

// Runner serializes engine access with whatever else is driving the engine.
// *server.Server satisfies it.
type Runner interface {
	Do(fn func() (interface{}, error)) (interface{}, error)
}

// lockRunner is used when no frame loop shares the engine.
type lockRunner struct {
	mu sync.Mutex
}

func (l *lockRunner) Do(fn func() (interface{}, error)) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// Server is the MCP tool server.
type Server struct {
	config *config.Config
	engine *engine.Engine
	runner Runner
	mcp    *mcpserver.MCPServer
}

// NewServer creates an MCP server for eng. A nil runner locks around each
// call instead.
func NewServer(cfg *config.Config, eng *engine.Engine, runner Runner) *Server {
	if runner == nil {
		runner = &lockRunner{}
	}
	s := &Server{
		config: cfg,
		engine: eng,
		runner: runner,
		mcp: mcpserver.NewMCPServer("turtle", Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Log logs a message via the config.
func (s *Server) Log(level int, format string, args ...interface{}) {
	s.config.Log(level, format, args...)
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.Log(1, "MCP: serving on stdio")
	return mcpserver.ServeStdio(s.mcp)
}

// do runs fn through the runner.
func (s *Server) do(fn func() (interface{}, error)) (interface{}, error) {
	return s.runner.Do(fn)
}

func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
