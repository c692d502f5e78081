// Package cli provides the command-line interface for the turtle engine.
// This file re-exports internal packages for embedding the engine.
package cli

import (
	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/lua"
	"github.com/zot/turtle/internal/mcp"
	"github.com/zot/turtle/internal/server"
)

// Re-export engine and server types for embedding
type (
	Engine      = engine.Engine
	Frame       = engine.Frame
	Server      = server.Server
	MCPServer   = mcp.Server
	DrawerState = drawer.State
	Segment     = drawer.Segment
	Polygon     = drawer.Polygon
)

// Re-export constructors
var (
	NewEngine    = engine.New
	NewServer    = server.New
	NewMCPServer = mcp.NewServer
)

// Re-export Lua utilities
var (
	LuaToGo = lua.LuaToGo
)
