// Package cli provides the command-line interface for the turtle engine.
// It exports Run() and RunWithHooks() to allow extension by wrapper projects.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/mcp"
	"github.com/zot/turtle/internal/notify"
	"github.com/zot/turtle/internal/server"
)

// Hooks allows extending the CLI with additional commands.
type Hooks struct {
	// BeforeDispatch is called before command dispatch.
	// Return (handled=true, exitCode) to skip normal dispatch.
	BeforeDispatch func(command string, args []string) (handled bool, exitCode int)

	// CustomHelp returns additional help text to append.
	CustomHelp func() string

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	if len(args) < 1 {
		return runServe(args)
	}

	command := args[0]
	cmdArgs := args[1:]

	// Let hooks intercept first
	if hooks != nil && hooks.BeforeDispatch != nil {
		if handled, code := hooks.BeforeDispatch(command, cmdArgs); handled {
			return code
		}
	}

	switch command {
	case "serve":
		return runServe(cmdArgs)
	case "run":
		return runHeadless(cmdArgs)
	case "mcp":
		return runMCP(cmdArgs)
	case "help", "-h", "--help":
		printHelp(hooks)
		return 0
	case "version", "--version":
		printVersion(hooks)
		return 0
	default:
		// Check if it's a flag (starts with -)
		if len(command) > 0 && command[0] == '-' {
			return runServe(args)
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printHelp(hooks)
		return 1
	}
}

// open loads the config and starts an engine.
func open(args []string) (*config.Config, *engine.Engine, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := eng.Start(); err != nil {
		eng.Close()
		return nil, nil, err
	}
	return cfg, eng, nil
}

func runServe(args []string) int {
	cfg, eng, err := open(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, eng)
	if cfg.MCP.Enabled {
		go func() {
			if err := mcp.NewServer(cfg, eng, srv).ServeStdio(); err != nil {
				cfg.Log(0, "MCP server error: %v", err)
			}
		}()
	}
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	cfg.Log(0, "Shutting down...")
	return 0
}

// runMCP serves MCP tools on stdio with the frame loop running but no
// renderer bridge.
func runMCP(args []string) int {
	cfg, eng, err := open(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	srv := server.New(cfg, eng)
	srv.StartLoop()
	defer srv.StopLoop()

	if err := mcp.NewServer(cfg, eng, srv).ServeStdio(); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}

// headlessOptions are the run command's own flags, stripped before the
// remaining arguments go to config.Load.
type headlessOptions struct {
	ticks int
	save  string
}

func parseHeadless(args []string) (headlessOptions, []string, error) {
	opts := headlessOptions{ticks: 60}
	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--ticks", "-ticks":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s needs a value", args[i])
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 0 {
				return opts, nil, fmt.Errorf("bad tick count: %q", args[i+1])
			}
			opts.ticks = n
			i++
		case "--save", "-save":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s needs a value", args[i])
			}
			opts.save = args[i+1]
			i++
		default:
			rest = append(rest, args[i])
		}
	}
	return opts, rest, nil
}

// runHeadless loads script files, ticks the engine and prints the console
// and the resulting drawers.
func runHeadless(args []string) int {
	opts, rest, err := parseHeadless(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	// script files come from the command line, not a watched directory
	rest = append([]string{"--watch=false"}, rest...)
	cfg, eng, err := open(rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer eng.Close()

	for _, path := range cfg.Args {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		// load failures are already on the console
		eng.LoadScript(name, string(src))
	}

	ctx := context.Background()
	for i := 0; i < opts.ticks; i++ {
		eng.Step(ctx)
	}
	cfg.Log(1, "Ran %d ticks", opts.ticks)

	printConsole(eng)
	printDrawers(eng)

	if opts.save != "" {
		path, err := eng.SaveFile(opts.save)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Saved %s\n", path)
	}
	return 0
}

func printConsole(eng *engine.Engine) {
	for _, line := range eng.Hub().Console().Lines() {
		switch line.Kind {
		case notify.LineUserInput:
			fmt.Printf("> %s\n", line.Text)
		case notify.LineError:
			fmt.Printf("! %s\n", line.Text)
		default:
			fmt.Println(line.Text)
		}
	}
}

func printDrawers(eng *engine.Engine) {
	for _, id := range eng.ListDrawers() {
		st, err := eng.DrawerSnapshot(id)
		if err != nil {
			continue
		}
		fmt.Printf("%s at (%g, %g) heading %g: %d segments, %d polygons\n",
			id, st.Position.X, st.Position.Y, st.Heading, len(st.Segments), len(st.Polygons))
	}
}

func printHelp(hooks *Hooks) {
	fmt.Println(`Turtle Drawing Engine

Usage: turtle [command] [options]

Commands:
  serve           Run the engine with the browser renderer bridge (default)
  run FILE...     Run Lua scripts headless for a number of ticks, then print
                  the console and every drawer
  mcp             Serve MCP tools on stdio
  help            Show this help
  version         Show the version

Options:
  --dir           Working directory holding config/ and scripts/
  --host          Renderer bridge listen address (default: 127.0.0.1)
  --port          Renderer bridge listen port (default: 8090)
  --fps           Simulation ticks per second (default: 60)
  --callback-budget   Max time a script callback may run (default: 50ms)
  --exec-timeout  Max time a script load or panel command may run (default: 5s)
  --scripts       Lua scripts directory (default: scripts/)
  --watch         Reload scripts when files change (default: true)
  --storage       Project storage: memory, sqlite, postgresql
  --storage-path  SQLite database path
  --storage-url   PostgreSQL connection URL
  --autosave      Project saved on shutdown and restored on startup
  --mcp           Also serve MCP tools on stdio while serving
  -v, -vv, -vvv   Verbosity

Run Options:
  --ticks N       Ticks to run (default: 60)
  --save FILE     Save the project to FILE afterwards

Examples:
  turtle serve --port 8090 --scripts examples/
  turtle run --ticks 120 square.lua spiral.lua
  turtle mcp --storage sqlite --storage-path turtle.db`)

	if hooks != nil && hooks.CustomHelp != nil {
		fmt.Println(hooks.CustomHelp())
	}
}

func printVersion(hooks *Hooks) {
	fmt.Printf("Turtle v%s\n", mcp.Version)
	if hooks != nil && hooks.CustomVersion != nil {
		fmt.Println(hooks.CustomVersion())
	}
}
