// Package server bridges the engine to browser renderers: it ticks the
// engine at the configured rate, pushes a frame to every websocket client
// after each tick, and serves a small REST API.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/protocol"
)

// Server owns the frame loop and the HTTP listener.
type Server struct {
	config       *config.Config
	engine       *engine.Engine
	svc          ChanSvc
	handler      *protocol.Handler
	httpServer   *http.Server
	httpEndpoint *HTTPEndpoint
	wsEndpoint   *WebSocketEndpoint

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	loopWG  sync.WaitGroup
}

// New creates a server around eng.
func New(cfg *config.Config, eng *engine.Engine) *Server {
	svc := make(ChanSvc)
	RunSvc(svc)

	s := &Server{
		config:  cfg,
		engine:  eng,
		svc:     svc,
		handler: protocol.NewHandler(cfg, eng),
	}
	s.wsEndpoint = NewWebSocketEndpoint(cfg, svc, s.handler)
	s.httpEndpoint = NewHTTPEndpoint(svc, eng, s.handler, s.wsEndpoint)

	// If --dir is specified, use that directory's html/ subdirectory
	if cfg.Server.Dir != "" {
		htmlDir := filepath.Join(cfg.Server.Dir, "html")
		s.httpEndpoint.SetStaticDir(htmlDir)
		s.config.Log(1, "Serving renderer from directory: %s", htmlDir)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpEndpoint
}

// WebSocket returns the websocket endpoint.
func (s *Server) WebSocket() *WebSocketEndpoint {
	return s.wsEndpoint
}

// Do runs fn on the engine's service goroutine.
func (s *Server) Do(fn func() (interface{}, error)) (interface{}, error) {
	return SvcSync(s.svc, fn)
}

// StartHTTP starts the HTTP server on the specified port and returns the
// base URL. Port 0 picks a free port.
func (s *Server) StartHTTP(port int) (string, error) {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(port))

	// We need to capture the actual port if 0 was passed
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if port == 0 {
		_, portStr, _ := net.SplitHostPort(listener.Addr().String())
		s.config.Server.Port, _ = strconv.Atoi(portStr)
	}

	s.httpServer = &http.Server{Handler: s.httpEndpoint}
	go func() {
		s.config.Log(0, "HTTP server listening on %s", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.config.Log(0, "HTTP server error: %v", err)
		}
	}()

	host := s.config.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(s.config.Server.Port))), nil
}

// StartLoop starts ticking the engine. It is a no-op if already running.
func (s *Server) StartLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.loopWG.Add(1)
	go s.frameLoop(s.stop)
}

// StopLoop stops ticking and waits for the current tick to finish.
func (s *Server) StopLoop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.loopWG.Wait()
}

func (s *Server) frameLoop(stop chan struct{}) {
	defer s.loopWG.Done()
	ticker := time.NewTicker(s.config.TickInterval())
	defer ticker.Stop()

	s.config.Log(1, "Frame loop: %v per tick", s.config.TickInterval())
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.TickOnce(context.Background())
		}
	}
}

// TickOnce advances the engine one tick and pushes the frame to every
// renderer.
func (s *Server) TickOnce(ctx context.Context) engine.Frame {
	frame, _ := SvcSync(s.svc, func() (engine.Frame, error) {
		return s.engine.Step(ctx), nil
	})
	if len(s.wsEndpoint.Connections()) == 0 {
		return frame
	}
	msg, err := protocol.NewMessage(protocol.MsgFrame, frame)
	if err != nil {
		s.config.Log(0, "Frame %d: %v", frame.Tick, err)
		return frame
	}
	s.wsEndpoint.Broadcast(msg)
	return frame
}

// Run serves until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	url, err := s.StartHTTP(s.config.Server.Port)
	if err != nil {
		return err
	}
	s.config.Log(0, "Renderer bridge at %s (websocket %s/ws)", url, url)
	s.StartLoop()

	<-ctx.Done()
	return s.Shutdown(context.Background())
}

// Shutdown stops the frame loop, closes renderer connections and stops the
// HTTP server. The engine is left open.
func (s *Server) Shutdown(ctx context.Context) error {
	s.StopLoop()
	s.wsEndpoint.CloseAll()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
