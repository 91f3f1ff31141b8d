package ids

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortableAndValid(t *testing.T) {
	a := New()
	b := New()
	assert.True(t, Valid(a))
	assert.True(t, Valid(b))
	assert.Less(t, a, b)
}

func TestNewNAscending(t *testing.T) {
	out := NewN(50)
	require.Len(t, out, 50)
	assert.True(t, sort.StringsAreSorted(out))
	assert.Nil(t, NewN(0))
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "65f1c2a9e4b0a1b2c3d4e5f6", "!!!!!!!!!!!!!!!!!!!!!!!!!!"} {
		assert.False(t, Valid(s), s)
	}
}
