package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkv/driftkv/internal/model"
)

func newHint(target, key string) *model.Hint {
	return &model.Hint{
		HintID:       fmt.Sprintf("%s-%s", target, key),
		TargetNodeID: target,
		Key:          key,
		Value:        []byte("v"),
		EnqueuedAt:   time.Now(),
	}
}

func TestMemoryHintStoreFIFOOrder(t *testing.T) {
	s := NewMemoryHintStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.StoreHint(ctx, newHint("b:1", fmt.Sprintf("k%d", i))))
	}

	hints, err := s.HintsForNode(ctx, "b:1", 3)
	require.NoError(t, err)
	require.Len(t, hints, 3)
	assert.Equal(t, "k0", hints[0].Key)
	assert.Equal(t, "k1", hints[1].Key)
	assert.Equal(t, "k2", hints[2].Key)
}

func TestMemoryHintStoreDeleteHint(t *testing.T) {
	s := NewMemoryHintStore()
	ctx := context.Background()

	h := newHint("b:1", "k")
	require.NoError(t, s.StoreHint(ctx, h))
	require.NoError(t, s.DeleteHint(ctx, h.HintID))

	n, err := s.HintCount(ctx, "b:1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryHintStoreTargets(t *testing.T) {
	s := NewMemoryHintStore()
	ctx := context.Background()

	require.NoError(t, s.StoreHint(ctx, newHint("b:1", "k1")))
	require.NoError(t, s.StoreHint(ctx, newHint("c:1", "k2")))

	targets, err := s.Targets(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b:1", "c:1"}, targets)

	removed, err := s.DeleteHintsForNode(ctx, "b:1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	targets, err = s.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c:1"}, targets)
}
