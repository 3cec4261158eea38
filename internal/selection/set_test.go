package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	var s Set

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Toggle("b"))
	assert.True(t, s.Toggle("a"))
	assert.True(t, s.Contains("a"))
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	assert.False(t, s.Toggle("a"))
	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Len())

	s.SelectAll([]string{"x", "y", "x"}, true)
	assert.Equal(t, []string{"x", "y"}, s.IDs())

	s.Remove("x", "missing")
	assert.Equal(t, []string{"y"}, s.IDs())

	s.SelectAll([]string{"x"}, false)
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
}

func TestNewSet(t *testing.T) {
	s := NewSet("3", "1", "3")
	assert.Equal(t, []string{"1", "3"}, s.IDs())

	s.Clear()
	assert.False(t, s.Contains("1"))
}
