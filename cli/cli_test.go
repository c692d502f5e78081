package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeadless(t *testing.T) {
	opts, rest, err := parseHeadless([]string{"--ticks", "5", "-v", "--save", "out", "a.lua"})
	require.NoError(t, err)
	assert.Equal(t, 5, opts.ticks)
	assert.Equal(t, "out", opts.save)
	assert.Equal(t, []string{"-v", "a.lua"}, rest)

	opts, rest, err = parseHeadless(nil)
	require.NoError(t, err)
	assert.Equal(t, 60, opts.ticks)
	assert.Empty(t, rest)

	_, _, err = parseHeadless([]string{"--ticks"})
	assert.Error(t, err)
	_, _, err = parseHeadless([]string{"--ticks", "-1"})
	assert.Error(t, err)
}

func TestRunHeadlessSavesProject(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "square.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
new("sq")
for i = 1, 4 do
  forward("sq", 10)
  rotate("sq", 90)
end
`), 0o644))

	out := filepath.Join(dir, "result")
	code := Run([]string{"run", "--ticks", "2", "--save", out,
		"--dir", dir, "--autosave=", script})
	require.Equal(t, 0, code)

	_, err := os.Stat(out + ".save")
	assert.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 1, Run([]string{"bogus"}))
	assert.Equal(t, 0, Run([]string{"version"}))
}

func TestHooksIntercept(t *testing.T) {
	called := false
	code := RunWithHooks([]string{"custom", "x"}, &Hooks{
		BeforeDispatch: func(command string, args []string) (bool, int) {
			called = command == "custom" && len(args) == 1
			return true, 7
		},
	})
	assert.True(t, called)
	assert.Equal(t, 7, code)
}
