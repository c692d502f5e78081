package notify

import "sync"

// LineKind tells the console how a line came about.
type LineKind int

const (
	LineStandard  LineKind = iota // print() output
	LineUserInput                 // a command-panel entry
	LineError                     // a script failure
)

func (k LineKind) String() string {
	switch k {
	case LineUserInput:
		return "input"
	case LineError:
		return "error"
	}
	return "standard"
}

// Line is one console entry.
type Line struct {
	Kind LineKind `json:"kind"`
	Text string   `json:"text"`
}

// Console is a fixed-length line buffer. Pushing past the limit drops the
// oldest line.
type Console struct {
	lines []Line
	limit int
	seq   uint64
	mu    sync.RWMutex
}

// NewConsole creates a console holding at most limit lines.
func NewConsole(limit int) *Console {
	if limit < 1 {
		limit = 1
	}
	return &Console{
		lines: make([]Line, 0, limit),
		limit: limit,
	}
}

// Push appends a line.
func (c *Console) Push(line Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) >= c.limit {
		copy(c.lines, c.lines[1:])
		c.lines = c.lines[:len(c.lines)-1]
	}
	c.lines = append(c.lines, line)
	c.seq++
}

// Lines returns a copy of the buffered lines, oldest first.
func (c *Console) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Seq counts every line ever pushed; presenters use it to detect new output.
func (c *Console) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// SetLen changes the limit, dropping the oldest lines if needed.
func (c *Console) SetLen(limit int) {
	if limit < 1 {
		limit = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = limit
	if over := len(c.lines) - limit; over > 0 {
		c.lines = append(c.lines[:0], c.lines[over:]...)
	}
}

// Clear empties the console.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = c.lines[:0]
}
