package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zot/turtle/internal/drawer"
	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/protocol"
)

const maxBody = 4 << 20

// HTTPEndpoint serves the REST API, the websocket upgrade and the renderer
// page.
type HTTPEndpoint struct {
	svc        ChanSvc
	engine     *engine.Engine
	handler    *protocol.Handler
	wsEndpoint *WebSocketEndpoint
	staticDir  string
	mux        *http.ServeMux
}

// NewHTTPEndpoint creates the HTTP endpoint. Engine access runs on svc.
func NewHTTPEndpoint(svc ChanSvc, eng *engine.Engine, handler *protocol.Handler, wsEndpoint *WebSocketEndpoint) *HTTPEndpoint {
	h := &HTTPEndpoint{
		svc:        svc,
		engine:     eng,
		handler:    handler,
		wsEndpoint: wsEndpoint,
		mux:        http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

// SetStaticDir sets the directory the renderer page is served from.
func (h *HTTPEndpoint) SetStaticDir(dir string) {
	h.staticDir = dir
}

// setupRoutes configures HTTP routes.
func (h *HTTPEndpoint) setupRoutes() {
	h.mux.HandleFunc("GET /api/drawers", h.handleDrawers)
	h.mux.HandleFunc("GET /api/drawers/{id}", h.handleDrawer)
	h.mux.HandleFunc("GET /api/segments", h.handleSegments)
	h.mux.HandleFunc("GET /api/scripts", h.handleScripts)
	h.mux.HandleFunc("POST /api/{type}", h.handleMessage)
	h.mux.HandleFunc("GET /ws", h.handleWebSocket)
	h.mux.HandleFunc("GET /", h.handleRoot)
}

// ServeHTTP implements http.Handler.
func (h *HTTPEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPEndpoint) handleDrawers(w http.ResponseWriter, r *http.Request) {
	ids, _ := SvcSync(h.svc, func() ([]string, error) {
		return h.engine.ListDrawers(), nil
	})
	writeJSON(w, http.StatusOK, ids)
}

func (h *HTTPEndpoint) handleDrawer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := SvcSync(h.svc, func() (drawer.State, error) {
		return h.engine.DrawerSnapshot(id)
	})
	if errors.Is(err, drawer.ErrNotFound) {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Canvas is every segment and polygon on the canvas.
type Canvas struct {
	Segments []drawer.Segment `json:"segments"`
	Polygons []drawer.Polygon `json:"polygons"`
}

func (h *HTTPEndpoint) handleSegments(w http.ResponseWriter, r *http.Request) {
	canvas, _ := SvcSync(h.svc, func() (Canvas, error) {
		return Canvas{
			Segments: nonNil(h.engine.AllSegments()),
			Polygons: nonNil(h.engine.AllPolygons()),
		}, nil
	})
	writeJSON(w, http.StatusOK, canvas)
}

func (h *HTTPEndpoint) handleScripts(w http.ResponseWriter, r *http.Request) {
	scripts, _ := SvcSync(h.svc, func() (interface{}, error) {
		return h.engine.Scripts(), nil
	})
	writeJSON(w, http.StatusOK, scripts)
}

// handleMessage runs the body as the data of a protocol message whose type
// comes from the path, e.g. POST /api/exec {"line": "drawers()"}.
func (h *HTTPEndpoint) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		h.writeError(w, "cannot read body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		h.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	msg := &protocol.Message{Type: protocol.MessageType(r.PathValue("type"))}
	if len(body) > 0 {
		msg.Data = body
	}
	connectionID := "api-" + r.RemoteAddr

	resp, err := SvcSync(h.svc, func() (*protocol.Response, error) {
		return h.handler.HandleMessage(connectionID, msg)
	})
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	status := http.StatusOK
	if resp.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (h *HTTPEndpoint) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsEndpoint.HandleWebSocket(w, r)
}

func (h *HTTPEndpoint) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.serveStatic(w, r, strings.TrimPrefix(r.URL.Path, "/"))
}

// serveStatic serves a file from the static directory.
func (h *HTTPEndpoint) serveStatic(w http.ResponseWriter, r *http.Request, path string) {
	if h.staticDir == "" {
		http.NotFound(w, r)
		return
	}
	if path == "" {
		path = "index.html"
	}

	// Set content type based on extension (http.ServeFile uses content sniffing which fails for CSS)
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeFile(w, r, filepath.Join(h.staticDir, filepath.Clean("/"+path)))
}

// writeError writes an error response.
func (h *HTTPEndpoint) writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, protocol.Response{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
