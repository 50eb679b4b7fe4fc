package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/model"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

func newTestHandoff(t *testing.T) (*HandoffService, *MockNodeClient) {
	t.Helper()
	nodes := new(MockNodeClient)
	svc := NewHandoffService(store.NewMemoryHintStore(), nodes, config.HandoffConfig{Backend: "memory", FlushBatch: 2}, zap.NewNop())
	return svc, nodes
}

func TestFlushDeliversInArrivalOrder(t *testing.T) {
	svc, nodes := newTestHandoff(t)
	ctx := context.Background()

	svc.StoreHint(nodeB, "k1", []byte("v1"))
	svc.StoreHint(nodeB, "k2", []byte("v2"))
	svc.StoreHint(nodeB, "k3", model.Tombstone)

	var order []string
	nodes.On("Put", mock.Anything, nodeB, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { order = append(order, args.String(2)) }).
		Return(int64(1), nil)
	nodes.On("Delete", mock.Anything, nodeB, "k3").
		Run(func(args mock.Arguments) { order = append(order, "k3") }).
		Return(nil)

	delivered, err := svc.Flush(ctx, nodeB)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, []string{"k1", "k2", "k3"}, order)

	n, err := svc.HintCount(ctx, nodeB)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushHaltsOnFirstFailure(t *testing.T) {
	svc, nodes := newTestHandoff(t)
	ctx := context.Background()

	svc.StoreHint(nodeB, "k1", []byte("v1"))
	svc.StoreHint(nodeB, "k2", []byte("v2"))

	nodes.On("Put", mock.Anything, nodeB, "k1", mock.Anything).Return(int64(0), errors.New("still down"))

	delivered, err := svc.Flush(ctx, nodeB)
	assert.Error(t, err)
	assert.Zero(t, delivered)

	n, err := svc.HintCount(ctx, nodeB)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	nodes.AssertNotCalled(t, "Put", mock.Anything, nodeB, "k2", mock.Anything)
}

func TestFlushEmptyQueue(t *testing.T) {
	svc, _ := newTestHandoff(t)

	delivered, err := svc.Flush(context.Background(), nodeB)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestClearForNodeDropsQueuedHints(t *testing.T) {
	svc, _ := newTestHandoff(t)
	ctx := context.Background()

	svc.StoreHint(nodeB, "k1", []byte("v1"))
	svc.StoreHint(nodeC, "k2", []byte("v2"))

	svc.ClearForNode(ctx, nodeB)

	n, err := svc.HintCount(ctx, nodeB)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.HintCount(ctx, nodeC)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
