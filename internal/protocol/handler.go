package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/engine"
)

// Handler applies incoming messages to the engine. Calls must not run
// concurrently with an engine tick.
type Handler struct {
	config *config.Config
	engine *engine.Engine
}

// NewHandler creates a new protocol handler.
func NewHandler(cfg *config.Config, eng *engine.Engine) *Handler {
	return &Handler{config: cfg, engine: eng}
}

// HandleMessage processes an incoming protocol message. Engine failures are
// reported in the response; a malformed message is an error.
func (h *Handler) HandleMessage(connectionID string, msg *Message) (*Response, error) {
	h.config.Log(2, "Message: type=%s from=%s", msg.Type, connectionID)

	result, err := h.dispatch(msg)
	if err != nil {
		if _, bad := err.(badMessage); bad {
			return nil, err
		}
		return &Response{Seq: msg.Seq, Error: err.Error()}, nil
	}
	return &Response{Seq: msg.Seq, Result: result}, nil
}

type badMessage struct{ error }

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, badMessage{fmt.Errorf("missing data")}
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, badMessage{err}
	}
	return v, nil
}

func (h *Handler) dispatch(msg *Message) (interface{}, error) {
	e := h.engine
	switch msg.Type {
	case MsgKey:
		m, err := decode[KeyMessage](msg.Data)
		if err != nil {
			return nil, err
		}
		if m.Down {
			e.Input().Press(m.Key)
		} else {
			e.Input().Release(m.Key)
		}
		return nil, nil

	case MsgExec:
		m, err := decode[ExecMessage](msg.Data)
		if err != nil {
			return nil, err
		}
		out, err := e.Exec(context.Background(), m.Line)
		if err != nil {
			return nil, err
		}
		return out, nil

	case MsgScript:
		m, err := decode[ScriptMessage](msg.Data)
		if err != nil {
			return nil, err
		}
		if m.Run {
			return nil, e.LoadScript(m.Name, m.Source)
		}
		return nil, e.SetScript(m.Name, m.Source)

	case MsgParam:
		m, err := decode[ParamMessage](msg.Data)
		if err != nil {
			return nil, err
		}
		var value interface{}
		if len(m.Value) > 0 {
			if err := json.Unmarshal(m.Value, &value); err != nil {
				return nil, badMessage{err}
			}
		}
		c, ok := e.Host().Context(m.Script)
		if !ok {
			return nil, fmt.Errorf("%w: %q", engine.ErrScriptNotFound, m.Script)
		}
		return nil, c.TriggerParamChange(context.Background(), m.Name, value)

	case MsgReset:
		e.Host().Reset()
		return nil, nil

	case MsgRecord:
		return nil, e.StartRecording()

	case MsgList:
		return h.list()

	case MsgRun, MsgDelete, MsgRestore, MsgPurge, MsgSave, MsgLoad, MsgStop, MsgPlay:
		m, err := decode[NameMessage](msg.Data)
		if err != nil {
			return nil, err
		}
		return h.named(msg.Type, m.Name)
	}
	return nil, badMessage{fmt.Errorf("unknown message type: %s", msg.Type)}
}

// named handles the messages that act on one script, project or demo.
func (h *Handler) named(t MessageType, name string) (interface{}, error) {
	e := h.engine
	switch t {
	case MsgRun:
		return nil, e.RunScript(name)
	case MsgDelete:
		return nil, e.TrashScript(name)
	case MsgRestore:
		return nil, e.RestoreScript(name)
	case MsgPurge:
		return nil, e.PurgeScript(name)
	case MsgSave:
		return nil, e.Save(name)
	case MsgLoad:
		return nil, e.Load(name)
	case MsgPlay:
		return nil, e.Play(name)
	case MsgStop:
		// stop without a name abandons recording or playback
		if name == "" {
			e.StopDemo()
			return nil, nil
		}
		inst, err := e.StopRecording(name)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
	return nil, badMessage{fmt.Errorf("unknown message type: %s", t)}
}

func (h *Handler) list() (interface{}, error) {
	e := h.engine
	projects, err := e.Projects()
	if err != nil {
		return nil, err
	}
	resp := ListResponse{Scripts: []ScriptInfo{}, Demos: []string{}, Projects: projects}
	for _, s := range e.Scripts() {
		info := ScriptInfo{Name: s.Name, Deleted: s.Deleted}
		if c, ok := e.Host().Context(s.Name); ok {
			info.State = c.State().String()
		}
		resp.Scripts = append(resp.Scripts, info)
	}
	for _, d := range e.Demos() {
		resp.Demos = append(resp.Demos, d.Name)
	}
	return resp, nil
}

// ErrorFor builds an error message to push to a renderer.
func ErrorFor(code string, err error) *Message {
	msg, _ := NewMessage(MsgError, ErrorMessage{Code: code, Description: err.Error()})
	return msg
}
