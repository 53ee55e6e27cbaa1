package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyName string

func (k keyName) String() string { return string(k) }

func TestParse(t *testing.T) {
	assert.Equal(t, []string{"cmd+shift+s", "ctrl+shift+s"}, Parse("⌘+⇧+s, ⌃+⇧+s"))
	assert.Equal(t, []string{"ctrl+b"}, Parse(" Ctrl+B "))
	assert.Empty(t, Parse(" , "))
}

func TestRegistry_HandleRespectsFilter(t *testing.T) {
	r := NewRegistry()
	visible := false
	r.SetFilter(func() bool { return visible })

	calls := 0
	require.NoError(t, r.Bind("ctrl+b, alt+p", func() { calls++ }))

	assert.False(t, r.Handle(keyName("ctrl+b")))
	assert.Equal(t, 0, calls)

	visible = true
	assert.True(t, r.Handle(keyName("ctrl+b")))
	assert.True(t, r.Handle(keyName("alt+p")))
	assert.False(t, r.Handle(keyName("ctrl+x")))
	assert.Equal(t, 2, calls)
}

func TestRegistry_Rebind(t *testing.T) {
	r := NewRegistry()
	var got []string
	require.NoError(t, r.Bind("ctrl+b", func() { got = append(got, "old") }))

	r.Unbind("ctrl+b")
	require.NoError(t, r.Bind("ctrl+t", func() { got = append(got, "new") }))

	assert.False(t, r.Handle(keyName("ctrl+b")))
	assert.True(t, r.Handle(keyName("ctrl+t")))
	assert.Equal(t, []string{"new"}, got)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Bound(" CTRL+T"))
	assert.Len(t, r.Help(), 1)
}

func TestRegistry_BindEmpty(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Bind("  ", func() {}))
}
