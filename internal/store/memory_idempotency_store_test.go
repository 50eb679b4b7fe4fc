package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStoreRoundTrip(t *testing.T) {
	s := NewMemoryIdempotencyStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "req-1", []byte(`{"ok":true}`), time.Minute))

	data, found, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"ok":true}`), data)
}

func TestMemoryIdempotencyStoreMiss(t *testing.T) {
	s := NewMemoryIdempotencyStore()
	defer s.Close()

	_, found, err := s.Get(context.Background(), "never-set")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryIdempotencyStoreExpiry(t *testing.T) {
	s := NewMemoryIdempotencyStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "req-1", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, found, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, found)
}
