package turtleclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/turtle/internal/config"
	"github.com/zot/turtle/internal/engine"
	"github.com/zot/turtle/internal/server"
	"github.com/zot/turtle/internal/storage"
)

func connect(t *testing.T) (*Connection, *server.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scripts.Dir = ""
	cfg.Storage.Autosave = ""
	eng := engine.NewWithStorage(cfg, storage.NewMemoryStorage())
	srv := server.New(cfg, eng)
	ts := httptest.NewServer(srv.Handler())

	c := NewConnection()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws"))
	t.Cleanup(func() {
		c.Disconnect()
		srv.Shutdown(context.Background())
		ts.Close()
		eng.Close()
	})
	return c, srv
}

func TestExecAndErrors(t *testing.T) {
	c, _ := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := c.Exec(ctx, `new("t") return exists("t")`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{true}, out.Values)

	_, err = c.Exec(ctx, `new("t")`)
	var serr *ServerError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Contains(t, serr.Message, "drawer already exists")
}

func TestScriptsProjectsAndDemos(t *testing.T) {
	c, _ := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.LoadScript(ctx, "s", `new("s")`, true))
	require.NoError(t, c.Record(ctx))
	_, err := c.Exec(ctx, `forward("s", 5)`)
	require.NoError(t, err)
	require.NoError(t, c.Stop(ctx, "walk"))
	require.NoError(t, c.Save(ctx, "p"))

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.Scripts, 1)
	assert.Equal(t, "s", list.Scripts[0].Name)
	assert.Equal(t, []string{"walk"}, list.Demos)
	assert.Contains(t, list.Projects, "p")

	require.NoError(t, c.Load(ctx, "p"))
	require.NoError(t, c.Play(ctx, "walk"))
	require.NoError(t, c.DeleteScript(ctx, "s"))
	assert.Error(t, c.RunScript(ctx, "s"))
}

func TestFrames(t *testing.T) {
	c, srv := connect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan engine.Frame, 8)
	c.OnFrame(func(f engine.Frame) { frames <- f })

	require.NoError(t, c.Key(ctx, "w", true))
	_, err := c.Exec(ctx, `new("f")`)
	require.NoError(t, err)

	srv.TickOnce(ctx)
	select {
	case f := <-frames:
		require.Len(t, f.Turtles, 1)
		assert.Equal(t, "f", f.Turtles[0].ID)
	case <-ctx.Done():
		t.Fatal("no frame received")
	}
}

func TestDisconnect(t *testing.T) {
	c, _ := connect(t)
	closed := make(chan struct{})
	c.OnClose(func() { close(closed) })

	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("OnClose not called")
	}

	_, err := c.Exec(context.Background(), `1`)
	assert.ErrorIs(t, err, ErrNotConnected)
}
