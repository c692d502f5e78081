package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/zot/turtle/internal/demo"
	"github.com/zot/turtle/internal/drawer"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcplib.NewTool("run",
		mcplib.WithDescription("Run Lua in the command panel, as if typed into the console. Returns the printed output and any returned values."),
		mcplib.WithString("line", mcplib.Required(), mcplib.Description("Lua source, e.g. new(\"t\") forward(\"t\", 50)")),
	), s.handleRun)

	s.mcp.AddTool(mcplib.NewTool("drawers",
		mcplib.WithDescription("List the IDs of every drawer on the canvas"),
	), s.handleDrawers)

	s.mcp.AddTool(mcplib.NewTool("drawer",
		mcplib.WithDescription("Show one drawer's position, heading, colour and drawn shapes"),
		mcplib.WithString("id", mcplib.Required(), mcplib.Description("Drawer ID")),
	), s.handleDrawer)

	s.mcp.AddTool(mcplib.NewTool("load_script",
		mcplib.WithDescription("Store a script and (by default) run it, replacing any script with the same name"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Script name")),
		mcplib.WithString("source", mcplib.Required(), mcplib.Description("Lua source")),
		mcplib.WithBoolean("run", mcplib.Description("Run the script after storing it (default true)")),
	), s.handleLoadScript)

	s.mcp.AddTool(mcplib.NewTool("save_project",
		mcplib.WithDescription("Save drawers, scripts and demos as a named project"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Project name")),
	), s.handleSaveProject)

	s.mcp.AddTool(mcplib.NewTool("load_project",
		mcplib.WithDescription("Replace the current drawers, scripts and demos with a saved project"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Project name")),
	), s.handleLoadProject)

	s.mcp.AddTool(mcplib.NewTool("demo_source",
		mcplib.WithDescription("Show a recorded demo as the Lua commands that reproduce it"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Demo name")),
	), s.handleDemoSource)
}

func (s *Server) handleRun(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	line, err := req.RequireString("line")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	s.Log(2, "MCP run: %s", line)
	out, err := s.do(func() (interface{}, error) {
		return s.engine.Exec(ctx, line)
	})
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) handleDrawers(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ids, _ := s.do(func() (interface{}, error) {
		return s.engine.ListDrawers(), nil
	})
	return jsonResult(ids)
}

func (s *Server) handleDrawer(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	state, err := s.do(func() (interface{}, error) {
		return s.engine.DrawerSnapshot(id)
	})
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return jsonResult(state)
}

func (s *Server) handleLoadScript(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	run := req.GetBool("run", true)

	_, err = s.do(func() (interface{}, error) {
		if run {
			return nil, s.engine.LoadScript(name, source)
		}
		return nil, s.engine.SetScript(name, source)
	})
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if run {
		return mcplib.NewToolResultText("loaded and ran " + name), nil
	}
	return mcplib.NewToolResultText("stored " + name), nil
}

func (s *Server) handleSaveProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if _, err := s.do(func() (interface{}, error) { return nil, s.engine.Save(name) }); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return mcplib.NewToolResultText("saved " + name), nil
}

func (s *Server) handleLoadProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if _, err := s.do(func() (interface{}, error) { return nil, s.engine.Load(name) }); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return mcplib.NewToolResultText("loaded " + name), nil
}

func (s *Server) handleDemoSource(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	v, err := s.do(func() (interface{}, error) { return s.engine.Demo(name) })
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	return mcplib.NewToolResultText(v.(demo.Instance).Source()), nil
}

// snapshots returns every drawer's state in ID order.
func (s *Server) snapshots() ([]drawer.State, error) {
	v, err := s.do(func() (interface{}, error) {
		var states []drawer.State
		for _, id := range s.engine.ListDrawers() {
			st, err := s.engine.DrawerSnapshot(id)
			if err != nil {
				continue // removed since listing
			}
			states = append(states, st)
		}
		return states, nil
	})
	if err != nil {
		return nil, err
	}
	states, _ := v.([]drawer.State)
	if states == nil {
		states = []drawer.State{}
	}
	return states, nil
}
