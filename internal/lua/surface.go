package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/turtle/internal/command"
	"github.com/zot/turtle/internal/drawer"
)

// Surface is the set of globals scripts use to drive drawers. Every
// state-changing call becomes a command.Command applied by the executor, so
// script calls and demo playback take the same path.
type Surface struct {
	exec *command.Executor
}

// NewSurface creates the surface over exec.
func NewSurface(exec *command.Executor) *Surface {
	return &Surface{exec: exec}
}

// Register installs the surface globals into r.
func (s *Surface) Register(r *Runtime) {
	L := r.State
	fns := map[string]lua.LGFunction{
		"new":              s.op(command.OpNew),
		"remove":           s.op(command.OpRemove),
		"center":           s.op(command.OpCenter),
		"forward":          s.op(command.OpForward),
		"rotate":           s.op(command.OpRotate),
		"set_angle":        s.op(command.OpSetAngle),
		"set_drawer_angle": s.op(command.OpSetAngle),
		"point_to":         s.op(command.OpPointTo),
		"set_color":        s.op(command.OpColor),
		"color":            s.op(command.OpColor),
		"enable":           s.op(command.OpEnable),
		"disable":          s.op(command.OpDisable),
		"fill":             s.op(command.OpFill),
		"rectangle":        s.op(command.OpRectangle),
		"wipe":             s.wipe,
		"exists":           s.exists,
		"drawers":          s.drawers,
		"position":         s.position,
		"notification":     s.notification,
		"print": func(L *lua.LState) int {
			r.printer(printArgs(L))
			return 0
		},
	}
	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

// op builds the Lua function for a drawer command: an id followed by the
// op's numeric arguments. Colour alpha defaults to 1.
func (s *Surface) op(op command.Op) lua.LGFunction {
	n := command.Arity(op)
	return func(L *lua.LState) int {
		id := L.CheckString(1)
		if id == "" {
			if op == command.OpNew {
				L.RaiseError("%v", drawer.ErrInvalidID)
			} else {
				L.RaiseError("%v: %q", drawer.ErrNotFound, id)
			}
			return 0
		}
		c := command.Command{Op: op, ID: id}
		if n > 0 {
			c.Args = make([]float64, n)
			for i := 0; i < n; i++ {
				if op == command.OpColor && i == 3 {
					c.Args[i] = float64(L.OptNumber(i+2, 1))
				} else {
					c.Args[i] = float64(L.CheckNumber(i + 2))
				}
			}
		}
		s.apply(L, c)
		return 0
	}
}

func (s *Surface) apply(L *lua.LState, c command.Command) {
	if err := s.exec.Apply(c); err != nil {
		L.RaiseError("%s: %v", c.Op, err)
	}
}

func (s *Surface) wipe(L *lua.LState) int {
	s.apply(L, command.Command{Op: command.OpWipe})
	return 0
}

func (s *Surface) exists(L *lua.LState) int {
	id := L.CheckString(1)
	L.Push(lua.LBool(s.exec.Registry().Exists(id)))
	return 1
}

func (s *Surface) drawers(L *lua.LState) int {
	L.Push(GoToLua(L, s.exec.Registry().List()))
	return 1
}

// position returns a table usable both as {x, y} and as .x/.y.
func (s *Surface) position(L *lua.LState) int {
	id := L.CheckString(1)
	d, err := s.exec.Registry().Get(id)
	if err != nil {
		L.RaiseError("position: %v", err)
		return 0
	}
	x, y, err := d.Position()
	if err != nil {
		L.RaiseError("position: %v", err)
		return 0
	}
	tbl := L.NewTable()
	L.RawSetInt(tbl, 1, lua.LNumber(x))
	L.RawSetInt(tbl, 2, lua.LNumber(y))
	L.SetField(tbl, "x", lua.LNumber(x))
	L.SetField(tbl, "y", lua.LNumber(y))
	L.Push(tbl)
	return 1
}

// notification never fails: a missing kind is 0 (custom), a missing message
// is empty. Notifications are dropped while a demo is recording.
func (s *Surface) notification(L *lua.LState) int {
	if s.exec.Recording() {
		return 0
	}
	kind := int(L.ToNumber(1))
	msg := ""
	if L.GetTop() >= 2 {
		msg = L.ToStringMeta(L.Get(2)).String()
	}
	s.exec.Apply(command.Command{Op: command.OpNotify, Kind: kind, Text: msg})
	return 0
}

// print sends a line to the sink through the executor.
func (s *Surface) print(msg string) {
	s.exec.Apply(command.Command{Op: command.OpPrint, Text: msg})
}

func printArgs(L *lua.LState) string {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	return strings.Join(parts, "\t")
}

// Globals lists the names Register installs.
func Globals() []string {
	return []string{
		"center", "color", "disable", "drawers", "enable", "exists", "fill",
		"forward", "new", "notification", "point_to", "position", "print",
		"rectangle", "remove", "rotate", "set_angle", "set_color",
		"set_drawer_angle", "wipe",
	}
}
