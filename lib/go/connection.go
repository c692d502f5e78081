// Package turtleclient is a Go client for the engine's websocket bridge. It
// drives the engine the way a browser renderer does and receives its frames.
package turtleclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/lua"
	"github.com/zot/turtle/internal/protocol"
)

// ErrNotConnected is returned when sending on a closed connection.
var ErrNotConnected = errors.New("not connected")

// ServerError is an error the engine reported for a request.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// response mirrors protocol.Response with the result left undecoded.
type response struct {
	Seq    int64           `json:"seq,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Connection is a connection to the engine's websocket endpoint.
type Connection struct {
	conn      *websocket.Conn
	connected bool
	nextSeq   int64
	pending   map[int64]chan *response
	closed    chan struct{}
	onFrame   func(engine.Frame)
	onError   func(protocol.ErrorMessage)
	onClose   func()
	mu        sync.RWMutex
	writeMu   sync.Mutex
}

// NewConnection creates an unconnected client.
func NewConnection() *Connection {
	return &Connection{
		pending: make(map[int64]chan *response),
		closed:  make(chan struct{}),
	}
}

// Connect dials the engine, e.g. ws://127.0.0.1:8090/ws.
func (c *Connection) Connect(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// Disconnect closes the connection.
func (c *Connection) Disconnect() error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := conn.Close()
	c.shutdown()
	return err
}

// IsConnected returns the connection state.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// OnFrame registers a callback for every frame the engine pushes. It runs on
// the read goroutine.
func (c *Connection) OnFrame(fn func(engine.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = fn
}

// OnError registers a callback for errors not tied to a request.
func (c *Connection) OnError(fn func(protocol.ErrorMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnClose registers a callback for connection close.
func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	close(c.closed)
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (c *Connection) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msgs, err := protocol.ParseMessages(data)
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			c.dispatch(msg)
		}
	}
}

func (c *Connection) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgResponse:
		var resp response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			return
		}
		c.mu.Lock()
		ch := c.pending[resp.Seq]
		delete(c.pending, resp.Seq)
		c.mu.Unlock()
		if ch != nil {
			ch <- &resp
		}

	case protocol.MsgFrame:
		c.mu.RLock()
		fn := c.onFrame
		c.mu.RUnlock()
		if fn == nil {
			return
		}
		var frame engine.Frame
		if err := json.Unmarshal(msg.Data, &frame); err == nil {
			fn(frame)
		}

	case protocol.MsgError:
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		var e protocol.ErrorMessage
		if fn != nil && json.Unmarshal(msg.Data, &e) == nil {
			fn(e)
		}
	}
}

// Send sends a message and waits for the engine's response. It returns the
// undecoded result.
func (c *Connection) Send(ctx context.Context, typ protocol.MessageType, data interface{}) (json.RawMessage, error) {
	msg, err := protocol.NewMessage(typ, data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextSeq++
	msg.Seq = c.nextSeq
	ch := make(chan *response, 1)
	c.pending[msg.Seq] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, msg.Seq)
		c.mu.Unlock()
	}

	encoded, err := msg.Encode()
	if err != nil {
		forget()
		return nil, err
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, encoded)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, &ServerError{Message: resp.Error}
		}
		return resp.Result, nil
	case <-c.closed:
		forget()
		return nil, ErrNotConnected
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

func (c *Connection) call(ctx context.Context, typ protocol.MessageType, data interface{}) error {
	_, err := c.Send(ctx, typ, data)
	return err
}

// Exec runs a line in the engine's command panel.
func (c *Connection) Exec(ctx context.Context, line string) (lua.Output, error) {
	var out lua.Output
	result, err := c.Send(ctx, protocol.MsgExec, protocol.ExecMessage{Line: line})
	if err != nil {
		return out, err
	}
	if len(result) > 0 {
		err = json.Unmarshal(result, &out)
	}
	return out, err
}

// LoadScript stores a script and, if run is set, runs it.
func (c *Connection) LoadScript(ctx context.Context, name, source string, run bool) error {
	return c.call(ctx, protocol.MsgScript, protocol.ScriptMessage{Name: name, Source: source, Run: run})
}

// RunScript runs a stored script.
func (c *Connection) RunScript(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgRun, protocol.NameMessage{Name: name})
}

// DeleteScript moves a script to the rubbish bin.
func (c *Connection) DeleteScript(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgDelete, protocol.NameMessage{Name: name})
}

// Key reports a key press or release.
func (c *Connection) Key(ctx context.Context, key string, down bool) error {
	return c.call(ctx, protocol.MsgKey, protocol.KeyMessage{Key: key, Down: down})
}

// Save saves the project under name.
func (c *Connection) Save(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgSave, protocol.NameMessage{Name: name})
}

// Load replaces the engine's state with a saved project.
func (c *Connection) Load(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgLoad, protocol.NameMessage{Name: name})
}

// Record starts recording a demo.
func (c *Connection) Record(ctx context.Context) error {
	return c.call(ctx, protocol.MsgRecord, nil)
}

// Stop ends recording and saves the demo as name. An empty name abandons
// recording or playback.
func (c *Connection) Stop(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgStop, protocol.NameMessage{Name: name})
}

// Play starts playing a demo.
func (c *Connection) Play(ctx context.Context, name string) error {
	return c.call(ctx, protocol.MsgPlay, protocol.NameMessage{Name: name})
}

// List returns the engine's scripts, demos and saved projects.
func (c *Connection) List(ctx context.Context) (protocol.ListResponse, error) {
	var list protocol.ListResponse
	result, err := c.Send(ctx, protocol.MsgList, nil)
	if err != nil {
		return list, err
	}
	err = json.Unmarshal(result, &list)
	return list, err
}
