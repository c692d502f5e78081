package lua

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// CompileError is returned when a script does not parse.
type CompileError struct {
	Name string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %s", e.Name, firstLine(message(e.Err)))
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RuntimeError is returned when a script raises an error or runs out of time.
type RuntimeError struct {
	Name     string
	Callback string // empty for top-level code
	Message  string
	Trace    string
	Err      error
}

func (e *RuntimeError) Error() string {
	where := e.Name
	if e.Callback != "" {
		where += "." + e.Callback
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the script was aborted for exceeding its budget.
func (e *RuntimeError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func newRuntimeError(ctx context.Context, name, callback string, err error) *RuntimeError {
	re := &RuntimeError{
		Name:     name,
		Callback: callback,
		Message:  firstLine(message(err)),
		Err:      err,
	}
	if apiErr, ok := err.(*lua.ApiError); ok {
		re.Trace = apiErr.StackTrace
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		re.Err = ctxErr
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			re.Message = "time budget exceeded"
		} else {
			re.Message = ctxErr.Error()
		}
	}
	return re
}

// message returns the Lua error value without the stack trace.
func message(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
