package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

func newTestAntiEntropy(t *testing.T) (*AntiEntropyService, *fakeLocalStore, *MockNodeClient) {
	t.Helper()

	logger := zap.NewNop()
	rings := NewRingManager(selfNode, 16, logger)
	rings.AddNode(nodeB)

	local := newFakeLocalStore()
	nodes := new(MockNodeClient)
	handoff := NewHandoffService(store.NewMemoryHintStore(), nodes, config.HandoffConfig{Backend: "memory", FlushBatch: 10}, logger)
	svc := NewAntiEntropyService(rings, local, nodes, handoff, config.AntiEntropyConfig{SyncInterval: time.Hour}, logger)
	return svc, local, nodes
}

func TestSyncPullsFresherPeerKeys(t *testing.T) {
	svc, local, nodes := newTestAntiEntropy(t)
	ctx := context.Background()

	local.set("k", []byte("old"), 2)
	nodes.On("AllMeta", mock.Anything, nodeB).Return(map[string]int64{"k": 9, "only-peer": 4}, nil)
	nodes.On("Get", mock.Anything, nodeB, "k").Return(&client.GetResult{Found: true, Value: []byte("new"), Timestamp: 9}, nil)
	nodes.On("Get", mock.Anything, nodeB, "only-peer").Return(&client.GetResult{Found: true, Value: []byte("p"), Timestamp: 4}, nil)

	svc.SyncWith(ctx, nodeB)

	entry, found, err := local.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("new"), entry.Value)

	_, found, err = local.Get(ctx, "only-peer")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSyncPushesFresherLocalKeys(t *testing.T) {
	svc, local, nodes := newTestAntiEntropy(t)
	ctx := context.Background()

	local.set("mine", []byte("v"), 8)
	local.set("shared", []byte("newer"), 8)
	nodes.On("AllMeta", mock.Anything, nodeB).Return(map[string]int64{"shared": 3}, nil)
	nodes.On("Put", mock.Anything, nodeB, "mine", []byte("v")).Return(int64(8), nil)
	nodes.On("Put", mock.Anything, nodeB, "shared", []byte("newer")).Return(int64(8), nil)

	svc.SyncWith(ctx, nodeB)

	nodes.AssertExpectations(t)
}

func TestSyncSkipsEqualTimestamps(t *testing.T) {
	svc, local, nodes := newTestAntiEntropy(t)

	local.set("k", []byte("same"), 5)
	nodes.On("AllMeta", mock.Anything, nodeB).Return(map[string]int64{"k": 5}, nil)

	svc.SyncWith(context.Background(), nodeB)

	nodes.AssertNotCalled(t, "Get", mock.Anything, nodeB, "k")
	nodes.AssertNotCalled(t, "Put", mock.Anything, nodeB, "k", mock.Anything)
}

func TestSyncFlushesHintsAfterReconciliation(t *testing.T) {
	svc, _, nodes := newTestAntiEntropy(t)
	ctx := context.Background()

	svc.handoff.StoreHint(nodeB, "hinted", []byte("h"))
	nodes.On("AllMeta", mock.Anything, nodeB).Return(map[string]int64{}, nil)
	nodes.On("Put", mock.Anything, nodeB, "hinted", []byte("h")).Return(int64(1), nil)

	svc.SyncWith(ctx, nodeB)

	n, err := svc.handoff.HintCount(ctx, nodeB)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTickSkipsUnreachablePeers(t *testing.T) {
	svc, _, nodes := newTestAntiEntropy(t)

	nodes.On("Ping", mock.Anything, nodeB).Return(assert.AnError)

	svc.Tick(context.Background())

	nodes.AssertNotCalled(t, "AllMeta", mock.Anything, nodeB)
}
