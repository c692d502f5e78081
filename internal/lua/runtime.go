// Package lua hosts the Lua scripts that drive drawers.
//
// Each script runs in its own Runtime: a gopher-lua state confined to one
// executor goroutine. The Host owns the runtimes, the Dispatcher calls their
// callbacks once per tick and the HotLoader reloads them from disk.
package lua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/turtle/internal/config"
)

// ErrClosed is returned for work queued on a runtime that was shut down.
var ErrClosed = errors.New("lua runtime closed")

// WorkItem represents a unit of work for the executor.
type WorkItem struct {
	fn     func() (interface{}, error)
	result chan WorkResult
}

// WorkResult holds the result of a work item.
type WorkResult struct {
	Value interface{}
	Err   error
}

// Runtime is one Lua state and the goroutine allowed to touch it.
type Runtime struct {
	State        *lua.LState
	name         string
	config       *config.Config
	executorChan chan WorkItem
	done         chan struct{}
	closeOnce    sync.Once

	// print output goes here; swapped while the command panel captures it
	printer func(string)
}

// NewRuntime creates a Lua state with the base, table, string and math
// libraries and the drawer surface installed, and starts its executor.
func NewRuntime(cfg *config.Config, name string, surface *Surface) *Runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	r := &Runtime{
		State:        L,
		name:         name,
		config:       cfg,
		executorChan: make(chan WorkItem, 100),
		done:         make(chan struct{}),
	}

	// Load standard libraries
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// No file or module access from scripts
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	if surface != nil {
		r.printer = surface.print
		surface.Register(r)
	}

	r.startExecutor()
	return r
}

// Name returns the name the runtime was created for.
func (r *Runtime) Name() string {
	return r.name
}

// Log logs a message via the config.
func (r *Runtime) Log(level int, format string, args ...interface{}) {
	r.config.Log(level, format, args...)
}

// startExecutor creates the goroutine that processes work items.
func (r *Runtime) startExecutor() {
	go func() {
		for {
			select {
			case <-r.done:
				return
			case work := <-r.executorChan:
				select {
				case <-r.done:
					work.result <- WorkResult{Err: ErrClosed}
					return
				default:
				}
				result, err := work.fn()
				work.result <- WorkResult{Value: result, Err: err}
			}
		}
	}()
}

// execute queues a function on the executor and blocks until complete.
func (r *Runtime) execute(fn func() (interface{}, error)) (interface{}, error) {
	result := make(chan WorkResult, 1)
	select {
	case r.executorChan <- WorkItem{fn: fn, result: result}:
	case <-r.done:
		return nil, ErrClosed
	}
	select {
	case res := <-result:
		return res.Value, res.Err
	case <-r.done:
		return nil, ErrClosed
	}
}

// Shutdown stops the executor and closes the Lua state.
func (r *Runtime) Shutdown() {
	r.closeOnce.Do(func() {
		// close the state on its own goroutine so a running call finishes first
		r.execute(func() (interface{}, error) {
			r.State.Close()
			close(r.done)
			return nil, nil
		})
	})
}

// compile loads source as a chunk without running it.
func (r *Runtime) compile(name, source string) (*lua.LFunction, error) {
	fn, err := r.State.Load(strings.NewReader(source), name)
	if err != nil {
		return nil, &CompileError{Name: name, Err: err}
	}
	return fn, nil
}

// call runs fn under ctx and returns its results. It must run on the
// executor. A cancelled ctx aborts the Lua code at its next instruction.
func (r *Runtime) call(ctx context.Context, name, callback string, fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	L := r.State
	L.SetContext(ctx)
	defer L.RemoveContext()

	base := L.GetTop()
	err := L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...)
	if err != nil {
		L.SetTop(base)
		return nil, newRuntimeError(ctx, name, callback, err)
	}
	top := L.GetTop()
	results := make([]lua.LValue, 0, top-base)
	for i := base + 1; i <= top; i++ {
		results = append(results, L.Get(i))
	}
	L.SetTop(base)
	return results, nil
}

// global returns the function stored in a global, or nil.
func (r *Runtime) global(name string) *lua.LFunction {
	fn, _ := r.State.GetGlobal(name).(*lua.LFunction)
	return fn
}

// GoToLua converts a Go value to Lua.
func GoToLua(L *lua.LState, val any) lua.LValue {
	if val == nil {
		return lua.LNil
	}

	switch v := val.(type) {
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(float64(v))
	case int64:
		return lua.LNumber(float64(v))
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []string:
		tbl := L.NewTable()
		for i, item := range v {
			L.RawSetInt(tbl, i+1, lua.LString(item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, item := range v {
			L.RawSetInt(tbl, i+1, GoToLua(L, item))
		}
		return tbl
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, item := range v {
			L.SetField(tbl, k, GoToLua(L, item))
		}
		return tbl
	default:
		rv := reflect.ValueOf(val)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return lua.LNumber(rv.Convert(reflect.TypeOf(float64(0))).Float())
		case reflect.Float32:
			return lua.LNumber(rv.Float())
		}
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// LuaToGo converts a Lua value to Go.
// Fields prefixed with "_" are skipped (internal/private fields).
func LuaToGo(val lua.LValue) interface{} {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		// Count numeric and string keys to determine if array or map
		hasNumericKeys := false
		hasStringKeys := false
		maxN := 0
		v.ForEach(func(key, _ lua.LValue) {
			if n, ok := key.(lua.LNumber); ok {
				hasNumericKeys = true
				if int(n) > maxN {
					maxN = int(n)
				}
			} else if ks, ok := key.(lua.LString); ok {
				if !strings.HasPrefix(string(ks), "_") {
					hasStringKeys = true
				}
			}
		})

		// Pure array (only numeric keys)
		if hasNumericKeys && !hasStringKeys && maxN > 0 {
			arr := make([]interface{}, maxN)
			for i := 1; i <= maxN; i++ {
				arr[i-1] = LuaToGo(v.RawGetInt(i))
			}
			return arr
		}

		// Object (string keys, possibly mixed with numeric)
		m := make(map[string]interface{})
		v.ForEach(func(key, value lua.LValue) {
			if ks, ok := key.(lua.LString); ok {
				keyStr := string(ks)
				if !strings.HasPrefix(keyStr, "_") {
					m[keyStr] = LuaToGo(value)
				}
			}
		})
		return m
	case *lua.LFunction:
		return "function"
	default:
		return nil
	}
}

// Describe renders a Lua value for the console.
func Describe(val lua.LValue) string {
	switch v := val.(type) {
	case *lua.LNilType:
		return "nil"
	case lua.LString:
		return string(v)
	case *lua.LTable:
		goVal := LuaToGo(v)
		if m, ok := goVal.(map[string]interface{}); ok && len(m) == 0 {
			return "{}"
		}
		data, err := json.Marshal(goVal)
		if err != nil {
			return v.String()
		}
		return string(data)
	}
	return val.String()
}
