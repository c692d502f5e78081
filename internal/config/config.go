// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration settings for the drawing engine.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Engine  EngineConfig  `toml:"engine"`
	Scripts ScriptsConfig `toml:"scripts"`
	Storage StorageConfig `toml:"storage"`
	MCP     MCPConfig     `toml:"mcp"`
	Logging LoggingConfig `toml:"logging"`

	Args []string `toml:"-"` // Positional arguments left after flags
}

// ServerConfig holds settings for the renderer bridge.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Dir  string `toml:"-"` // Working directory (CLI only, not in config file)
}

// EngineConfig holds simulation loop settings.
type EngineConfig struct {
	FPS            int      `toml:"fps"`
	CallbackBudget Duration `toml:"callback_budget"` // Max time one script callback may run
	ExecTimeout    Duration `toml:"exec_timeout"`    // Max time a script load or panel command may run
	ConsoleLines   int      `toml:"console_lines"`   // Console buffer length
}

// ScriptsConfig holds Lua script settings.
type ScriptsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// StorageConfig holds project storage settings.
type StorageConfig struct {
	Type     string `toml:"type"`     // "memory", "sqlite", "postgresql"
	Path     string `toml:"path"`     // SQLite file path
	URL      string `toml:"url"`      // PostgreSQL connection URL
	Autosave string `toml:"autosave"` // Project name saved on shutdown ("" disables)
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=none, 1=lifecycle, 2=scripts, 3=ticks, 4=values
}

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] == 'v' {
			allV := true
			for _, c := range arg[1:] {
				if c != 'v' {
					allV = false
					break
				}
			}
			if allV {
				for range arg[1:] {
					result = append(result, "-v")
				}
				continue
			}
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Engine: EngineConfig{
			FPS:            60,
			CallbackBudget: Duration(50 * time.Millisecond),
			ExecTimeout:    Duration(5 * time.Second),
			ConsoleLines:   256,
		},
		Scripts: ScriptsConfig{
			Dir:   "scripts/",
			Watch: true,
		},
		Storage: StorageConfig{
			Type:     "memory",
			Path:     "turtle.db",
			Autosave: "autosave",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("turtle", flag.ContinueOnError)
	dir := fs.String("dir", "", "Working directory holding config/ and scripts/")

	host := fs.String("host", "", "Renderer bridge listen address")
	port := fs.Int("port", 0, "Renderer bridge listen port")

	fps := fs.Int("fps", 0, "Simulation ticks per second")
	budget := fs.Duration("callback-budget", 0, "Max time a script callback may run")
	execTimeout := fs.Duration("exec-timeout", 0, "Max time a script load or panel command may run")

	scriptsDir := fs.String("scripts", "", "Lua scripts directory")
	watch := fs.Bool("watch", true, "Reload scripts when files change")

	storage := fs.String("storage", "", "Storage type: memory, sqlite, postgresql")
	storagePath := fs.String("storage-path", "", "SQLite database path")
	storageURL := fs.String("storage-url", "", "PostgreSQL connection URL")
	autosave := fs.String("autosave", "", "Project name saved on shutdown")

	mcp := fs.Bool("mcp", false, "Serve MCP tools on stdio")

	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	configPath := "config/config.toml"
	if *dir != "" {
		configPath = *dir + "/config/config.toml"
	}
	if err := cfg.loadTOML(configPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnv()

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *fps != 0 {
		cfg.Engine.FPS = *fps
	}
	if *budget != 0 {
		cfg.Engine.CallbackBudget = Duration(*budget)
	}
	if *execTimeout != 0 {
		cfg.Engine.ExecTimeout = Duration(*execTimeout)
	}
	if *scriptsDir != "" {
		cfg.Scripts.Dir = *scriptsDir
	}
	if set["watch"] {
		cfg.Scripts.Watch = *watch
	}
	if *storage != "" {
		cfg.Storage.Type = *storage
	}
	if *storagePath != "" {
		cfg.Storage.Path = *storagePath
	}
	if *storageURL != "" {
		cfg.Storage.URL = *storageURL
	}
	if set["autosave"] {
		cfg.Storage.Autosave = *autosave
	}
	if set["mcp"] {
		cfg.MCP.Enabled = *mcp
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	cfg.Server.Dir = *dir
	cfg.Args = fs.Args()

	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("TURTLE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("TURTLE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TURTLE_FPS"); v != "" {
		if fps, err := strconv.Atoi(v); err == nil {
			c.Engine.FPS = fps
		}
	}
	if v := os.Getenv("TURTLE_CALLBACK_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.CallbackBudget = Duration(d)
		}
	}
	if v := os.Getenv("TURTLE_EXEC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.ExecTimeout = Duration(d)
		}
	}
	if v := os.Getenv("TURTLE_SCRIPTS"); v != "" {
		c.Scripts.Dir = v
	}
	if v := os.Getenv("TURTLE_WATCH"); v != "" {
		c.Scripts.Watch = v == "true" || v == "1"
	}
	if v := os.Getenv("TURTLE_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("TURTLE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TURTLE_STORAGE_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("TURTLE_MCP"); v != "" {
		c.MCP.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TURTLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TURTLE_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// Log prints a message when level is within the configured verbosity.
// Level 0 always prints.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if c == nil || level > c.Logging.Verbosity {
		return
	}
	log.Printf(fmt.Sprintf("[v%d] ", level)+format, args...)
}

// TickInterval returns the duration of one simulation tick.
func (c *Config) TickInterval() time.Duration {
	fps := c.Engine.FPS
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}
