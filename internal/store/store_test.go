package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightingmap.app/internal/store/memory"
)

func TestOpenWithoutDSNUsesMemory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), "  ", 0)
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.IsType(t, &memory.Store{}, s)
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, closeFn())
}
