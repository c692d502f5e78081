// Package notify carries script output away from the engine: notifications
// (toasts) and console lines. The engine never renders these itself; a sink
// implementation decides what to do with them.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/zot/turtle/internal/config"
)

// Category classifies a notification.
type Category int

// Fixed categories; any other value is a custom category.
const (
	Info    Category = 1
	Success Category = 2
	Error   Category = 3
	Warning Category = 4
)

// CategoryOf maps the integer a script passes to notification().
func CategoryOf(kind int) Category {
	return Category(kind)
}

// IsCustom reports whether c is outside the fixed categories.
func (c Category) IsCustom() bool {
	return c < Info || c > Warning
}

func (c Category) String() string {
	switch c {
	case Info:
		return "info"
	case Success:
		return "success"
	case Error:
		return "error"
	case Warning:
		return "warning"
	}
	return fmt.Sprintf("custom(%d)", int(c))
}

// Sink receives notifications and print output.
type Sink interface {
	Notify(category Category, message string)
	Print(message string)
}

// Notification is one emitted notification.
type Notification struct {
	Category Category  `json:"category"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Hub is the engine's sink. It keeps console lines and queues notifications
// until a presenter drains them.
type Hub struct {
	config  *config.Config
	console *Console
	pending []Notification
	limit   int
	mu      sync.Mutex
}

// NewHub creates a hub whose console keeps consoleLines lines.
func NewHub(cfg *config.Config, consoleLines int) *Hub {
	if consoleLines <= 0 {
		consoleLines = 256
	}
	return &Hub{
		config:  cfg,
		console: NewConsole(consoleLines),
		limit:   consoleLines,
	}
}

// Notify queues a notification. Errors are also written to the console.
func (h *Hub) Notify(category Category, message string) {
	h.config.Log(2, "Notification [%s]: %s", category, message)
	if category == Error {
		h.console.Push(Line{Kind: LineError, Text: message})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) >= h.limit {
		h.pending = h.pending[1:]
	}
	h.pending = append(h.pending, Notification{Category: category, Message: message, At: time.Now()})
}

// Print appends a standard console line.
func (h *Hub) Print(message string) {
	h.config.Log(3, "Print: %s", message)
	h.console.Push(Line{Kind: LineStandard, Text: message})
}

// Drain returns and clears queued notifications.
func (h *Hub) Drain() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pending
	h.pending = nil
	return out
}

// Console returns the hub's console buffer.
func (h *Hub) Console() *Console {
	return h.console
}

// Discard is a sink that drops everything.
type Discard struct{}

func (Discard) Notify(Category, string) {}
func (Discard) Print(string)            {}
