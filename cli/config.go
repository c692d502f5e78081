// Package cli provides the command-line interface for the turtle engine.
// This file re-exports config types from internal/config for public API.
package cli

import (
	"github.com/zot/turtle/internal/config"
)

// Re-export config types for public API
type (
	Config        = config.Config
	ServerConfig  = config.ServerConfig
	EngineConfig  = config.EngineConfig
	ScriptsConfig = config.ScriptsConfig
	StorageConfig = config.StorageConfig
	MCPConfig     = config.MCPConfig
	LoggingConfig = config.LoggingConfig
	Duration      = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	Load          = config.Load
)
