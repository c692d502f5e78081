// Package protocol defines the JSON messages exchanged with a renderer and
// applies incoming ones to the engine.
package protocol

import (
	"encoding/json"
)

// MessageType identifies the type of protocol message.
type MessageType string

const (
	// Renderer -> engine
	MsgKey     MessageType = "key"
	MsgExec    MessageType = "exec"
	MsgScript  MessageType = "script"
	MsgRun     MessageType = "run"
	MsgDelete  MessageType = "delete"
	MsgRestore MessageType = "restore"
	MsgPurge   MessageType = "purge"
	MsgParam   MessageType = "param"
	MsgReset   MessageType = "reset"
	MsgSave    MessageType = "save"
	MsgLoad    MessageType = "load"
	MsgRecord  MessageType = "record"
	MsgStop    MessageType = "stop"
	MsgPlay    MessageType = "play"
	MsgList    MessageType = "list"

	// Engine -> renderer
	MsgFrame    MessageType = "frame"
	MsgResponse MessageType = "response"
	MsgError    MessageType = "error"
)

// Message is the base protocol message structure. Seq is chosen by the
// sender and echoed in the response.
type Message struct {
	Type MessageType     `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// KeyMessage reports a key going down or up.
type KeyMessage struct {
	Key  string `json:"key"`
	Down bool   `json:"down"`
}

// ExecMessage is one command-panel line.
type ExecMessage struct {
	Line string `json:"line"`
}

// ScriptMessage saves a script's source and optionally runs it.
type ScriptMessage struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Run    bool   `json:"run,omitempty"`
}

// NameMessage carries the name a script, project or demo message acts on.
type NameMessage struct {
	Name string `json:"name"`
}

// ParamMessage calls a script's on_param_change.
type ParamMessage struct {
	Script string          `json:"script"`
	Name   string          `json:"name"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// ListResponse describes the scripts, demos and stored projects.
type ListResponse struct {
	Scripts  []ScriptInfo `json:"scripts"`
	Demos    []string     `json:"demos"`
	Projects []string     `json:"projects"`
}

// ScriptInfo is a script entry without its source.
type ScriptInfo struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted,omitempty"`
	State   string `json:"state,omitempty"`
}

// ErrorMessage represents an error pushed to a renderer.
type ErrorMessage struct {
	Code        string `json:"code"`        // One-word error code (e.g., "bad-message", "internal")
	Description string `json:"description"` // Human-readable error description
}

// Response answers one incoming message.
type Response struct {
	Seq    int64       `json:"seq,omitempty"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Message wraps the response for sending to a renderer.
func (r *Response) Message() *Message {
	msg, err := NewMessage(MsgResponse, r)
	if err != nil {
		msg, _ = NewMessage(MsgResponse, Response{Seq: r.Seq, Error: err.Error()})
	}
	msg.Seq = r.Seq
	return msg
}

// BatchWrapper wraps a batch of messages.
type BatchWrapper struct {
	Messages []Message `json:"messages"`
}

// ParseMessage parses a raw JSON message into a typed message.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParseMessages parses raw JSON that may be a single message, an array of
// messages, or a batch wrapper.
func ParseMessages(data []byte) ([]*Message, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, err
		}
		return pointers(msgs), nil

	case '{':
		var wrapper BatchWrapper
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, err
		}
		if len(wrapper.Messages) > 0 {
			return pointers(wrapper.Messages), nil
		}
		msg, err := ParseMessage(data)
		if err != nil {
			return nil, err
		}
		return []*Message{msg}, nil
	}
	return nil, nil
}

func pointers(msgs []Message) []*Message {
	result := make([]*Message, len(msgs))
	for i := range msgs {
		result[i] = &msgs[i]
	}
	return result
}

// NewMessage creates a new message with the given type and data.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type: msgType,
		Data: raw,
	}, nil
}

// Encode serializes a message to JSON.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
