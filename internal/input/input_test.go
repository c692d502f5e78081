package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot(t *testing.T) {
	s := NewSnapshot("w", "a", "", "w")
	assert.Equal(t, []string{"a", "w"}, s.Keys())
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Pressed("a"))
	assert.False(t, s.Pressed("d"))

	assert.True(t, s.Equal(NewSnapshot("a", "w")))
	assert.False(t, s.Equal(NewSnapshot("a")))
	assert.False(t, s.Equal(NewSnapshot("a", "d")))
	assert.True(t, Snapshot{}.Equal(NewSnapshot()))
	assert.Empty(t, Snapshot{}.Keys())
}

func TestStateSnapshotIsACopy(t *testing.T) {
	st := NewState()
	st.Press("space")
	snap := st.Snapshot()

	st.Press("left")
	st.Release("space")

	assert.Equal(t, []string{"space"}, snap.Keys())
	assert.Equal(t, []string{"left"}, st.Snapshot().Keys())

	st.Set([]string{"x", "y"})
	assert.Equal(t, []string{"x", "y"}, st.Snapshot().Keys())
}
