// Package command defines the closed set of state-changing operations a script
// can perform. The Lua surface turns dynamically typed calls into Commands;
// the Executor applies them to the drawer registry. Commands are also the unit
// recorded into demos and written into project files.
package command

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Op identifies a command. Values are part of the project file format.
type Op uint8

const (
	OpNew Op = iota + 1
	OpRemove
	OpCenter
	OpForward
	OpRotate
	OpSetAngle
	OpPointTo
	OpColor
	OpEnable
	OpDisable
	OpWipe
	OpFill
	OpRectangle
	OpPrint
	OpNotify
	OpLoop
)

var opNames = map[Op]string{
	OpNew:       "new",
	OpRemove:    "remove",
	OpCenter:    "center",
	OpForward:   "forward",
	OpRotate:    "rotate",
	OpSetAngle:  "set_angle",
	OpPointTo:   "point_to",
	OpColor:     "color",
	OpEnable:    "enable",
	OpDisable:   "disable",
	OpWipe:      "wipe",
	OpFill:      "fill",
	OpRectangle: "rectangle",
	OpPrint:     "print",
	OpNotify:    "notification",
	OpLoop:      "loop",
}

// arity is the number of float arguments each op takes.
var arity = map[Op]int{
	OpForward:   1,
	OpRotate:    1,
	OpSetAngle:  1,
	OpPointTo:   2,
	OpColor:     4,
	OpRectangle: 2,
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Valid reports whether op is a known command.
func (op Op) Valid() bool {
	_, ok := opNames[op]
	return ok
}

// Drawer reports whether op targets a single drawer.
func (op Op) Drawer() bool {
	switch op {
	case OpWipe, OpPrint, OpNotify, OpLoop:
		return false
	}
	return op.Valid()
}

// Command is one operation with its arguments. Only the fields the op uses
// are set: ID for drawer ops, Args for numeric arguments, Text for print and
// notification, Kind for notification, Count and Body for loops.
type Command struct {
	Op    Op
	ID    string
	Args  []float64
	Text  string
	Kind  int
	Count int
	Body  []Command
}

// Arity returns how many numeric arguments op takes.
func Arity(op Op) int {
	return arity[op]
}

// Validate checks that the command is well formed.
func (c Command) Validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("unknown command %s", c.Op)
	}
	if c.Op.Drawer() && c.ID == "" {
		return fmt.Errorf("%s: missing drawer id", c.Op)
	}
	if want := arity[c.Op]; len(c.Args) != want {
		return fmt.Errorf("%s: expected %d numeric arguments, got %d", c.Op, want, len(c.Args))
	}
	if c.Op == OpLoop {
		if c.Count < 0 {
			return fmt.Errorf("loop: negative count %d", c.Count)
		}
		for _, step := range c.Body {
			if err := step.Validate(); err != nil {
				return fmt.Errorf("loop: %w", err)
			}
		}
	}
	return nil
}

// String renders the command as Lua source that performs it.
func (c Command) String() string {
	switch c.Op {
	case OpWipe:
		return "wipe()"
	case OpPrint:
		return fmt.Sprintf("print(%s)", strconv.Quote(c.Text))
	case OpNotify:
		return fmt.Sprintf("notification(%d, %s)", c.Kind, strconv.Quote(c.Text))
	case OpLoop:
		steps := make([]string, len(c.Body))
		for i, step := range c.Body {
			steps[i] = step.String()
		}
		return fmt.Sprintf("for i=1,%d do %s end", c.Count, strings.Join(steps, "\n"))
	}

	args := []string{strconv.Quote(c.ID)}
	for _, a := range c.Args {
		args = append(args, strconv.FormatFloat(a, 'g', -1, 64))
	}
	return fmt.Sprintf("%s(%s)", c.Op, strings.Join(args, ", "))
}

// Equal reports whether two commands are identical, loops included.
func (c Command) Equal(o Command) bool {
	if c.Op != o.Op || c.ID != o.ID || c.Text != o.Text || c.Kind != o.Kind || c.Count != o.Count {
		return false
	}
	if !slices.Equal(c.Args, o.Args) || len(c.Body) != len(o.Body) {
		return false
	}
	for i := range c.Body {
		if !c.Body[i].Equal(o.Body[i]) {
			return false
		}
	}
	return true
}

// Source renders a command list as a Lua chunk.
func Source(cmds []Command) string {
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// Steps counts the primitive commands a list expands to.
func Steps(cmds []Command) int {
	n := 0
	for _, c := range cmds {
		if c.Op == OpLoop {
			n += c.Count * Steps(c.Body)
		} else {
			n++
		}
	}
	return n
}

// Expand replaces loops by their repeated bodies.
func Expand(cmds []Command) []Command {
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Op != OpLoop {
			out = append(out, c)
			continue
		}
		body := Expand(c.Body)
		for i := 0; i < c.Count; i++ {
			out = append(out, body...)
		}
	}
	return out
}
