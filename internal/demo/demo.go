// Package demo records the commands scripts perform and plays them back one
// step per tick.
package demo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/config"
)

// State is what the buffer is doing.
type State int

const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	}
	return "idle"
}

var (
	ErrBusy       = errors.New("demo buffer busy")
	ErrNotRunning = errors.New("demo buffer not recording")
)

// maxPeriod bounds the block length Compact searches for repeats.
const maxPeriod = 8

// Instance is a named recording.
type Instance struct {
	Name      string            `json:"name"`
	Steps     []command.Command `json:"steps"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Source renders the demo as Lua.
func (in Instance) Source() string {
	return command.Source(in.Steps)
}

// Buffer records or plays back one demo at a time.
type Buffer struct {
	config  *config.Config
	state   State
	steps   []command.Command
	playing []command.Command
	next    int
	name    string
	mu      sync.Mutex
}

// NewBuffer creates an idle buffer.
func NewBuffer(cfg *config.Config) *Buffer {
	return &Buffer{config: cfg}
}

// State returns the current buffer state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StartRecording discards any previous recording and begins a new one.
func (b *Buffer) StartRecording() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Playing {
		return fmt.Errorf("%w: playing %q", ErrBusy, b.name)
	}
	b.state = Recording
	b.steps = nil
	b.config.Log(1, "Demo: recording")
	return nil
}

// Record appends c while recording. It satisfies command.Recorder.
func (b *Buffer) Record(c command.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Recording {
		b.steps = append(b.steps, c)
	}
}

// Recording reports whether the buffer is recording.
func (b *Buffer) Recording() bool {
	return b.State() == Recording
}

// StopRecording ends the recording and returns it as a named demo with
// repeated runs folded into loops.
func (b *Buffer) StopRecording(name string) (Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Recording {
		return Instance{}, ErrNotRunning
	}
	inst := Instance{
		Name:      name,
		Steps:     Compact(b.steps),
		CreatedAt: time.Now(),
	}
	b.state = Idle
	b.steps = nil
	b.config.Log(1, "Demo: recorded %q (%d steps)", name, command.Steps(inst.Steps))
	return inst, nil
}

// StartPlayback queues inst for playback. Any recording in progress is
// abandoned.
func (b *Buffer) StartPlayback(inst Instance) error {
	for _, c := range inst.Steps {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("demo %q: %w", inst.Name, err)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Playing {
		return fmt.Errorf("%w: playing %q", ErrBusy, b.name)
	}
	b.state = Playing
	b.steps = nil
	b.playing = command.Expand(inst.Steps)
	b.next = 0
	b.name = inst.Name
	b.config.Log(1, "Demo: playing %q (%d steps)", inst.Name, len(b.playing))
	return nil
}

// Advance applies the next playback step. It returns false once playback
// has finished or when nothing is playing. A failing step stops playback.
func (b *Buffer) Advance(exec *command.Executor) (bool, error) {
	b.mu.Lock()
	if b.state != Playing {
		b.mu.Unlock()
		return false, nil
	}
	if b.next >= len(b.playing) {
		b.stopPlayback()
		b.mu.Unlock()
		return false, nil
	}
	step := b.playing[b.next]
	b.next++
	b.mu.Unlock()

	if err := exec.Apply(step); err != nil {
		b.mu.Lock()
		b.stopPlayback()
		b.mu.Unlock()
		return false, fmt.Errorf("demo step %s: %w", step, err)
	}
	return true, nil
}

// Progress reports the playback position.
func (b *Buffer) Progress() (done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next, len(b.playing)
}

// Clear stops whatever the buffer is doing.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Idle
	b.steps = nil
	b.stopPlayback()
}

func (b *Buffer) stopPlayback() {
	if b.state == Playing {
		b.config.Log(2, "Demo: finished %q", b.name)
		b.state = Idle
	}
	b.playing = nil
	b.next = 0
	b.name = ""
}

// Compact folds consecutive repeats of a block of steps into loops, picking
// at each position the block that covers the most steps.
func Compact(steps []command.Command) []command.Command {
	var out []command.Command
	for i := 0; i < len(steps); {
		bestPeriod, bestCount := 1, 1
		for p := 1; p <= maxPeriod && i+2*p <= len(steps); p++ {
			n := repeats(steps[i:], p)
			if n >= 2 && n*p > bestPeriod*bestCount {
				bestPeriod, bestCount = p, n
			}
		}
		if bestCount < 2 {
			out = append(out, steps[i])
			i++
			continue
		}
		body := make([]command.Command, bestPeriod)
		copy(body, steps[i:i+bestPeriod])
		out = append(out, command.Command{Op: command.OpLoop, Count: bestCount, Body: body})
		i += bestPeriod * bestCount
	}
	return out
}

// repeats counts how many times steps[:p] occurs back to back.
func repeats(steps []command.Command, p int) int {
	n := 1
	for start := p; start+p <= len(steps); start += p {
		for k := 0; k < p; k++ {
			if !steps[start+k].Equal(steps[k]) {
				return n
			}
		}
		n++
	}
	return n
}
