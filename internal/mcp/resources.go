package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// DrawersURI is the resource holding every drawer's state.
const DrawersURI = "turtle://drawers"

func (s *Server) registerResources() {
	s.mcp.AddResource(mcplib.NewResource(DrawersURI, "Drawers",
		mcplib.WithResourceDescription("Every drawer with its position, heading, colour and shapes"),
		mcplib.WithMIMEType("application/json"),
	), s.readDrawers)
}

func (s *Server) readDrawers(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	states, err := s.snapshots()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(states)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      DrawersURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
