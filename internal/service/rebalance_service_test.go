package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/driftkv/driftkv/internal/algorithm"
	"go.uber.org/zap"
)

func TestHandleJoinPushesOwnedKeys(t *testing.T) {
	local := newFakeLocalStore()
	nodes := new(MockNodeClient)
	svc := NewRebalanceService(local, nodes, selfNode, zap.NewNop())

	ring := algorithm.NewRing(16).AddNode(selfNode).AddNode(nodeB)

	owned := 0
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		local.set(key, []byte("v"), int64(i+1))
		if owner, _ := ring.FindNode(key); owner == nodeB {
			owned++
			nodes.On("Put", mock.Anything, nodeB, key, []byte("v")).Return(int64(1), nil).Once()
		}
	}
	require.Positive(t, owned, "expected some keys to land on the new node")

	svc.HandleJoin(context.Background(), nodeB, ring)

	nodes.AssertExpectations(t)

	// Source copies stay in place.
	keys, err := local.AllKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 50)
}

func TestHandleJoinIgnoresSelf(t *testing.T) {
	local := newFakeLocalStore()
	nodes := new(MockNodeClient)
	svc := NewRebalanceService(local, nodes, selfNode, zap.NewNop())

	local.set("k", []byte("v"), 1)
	ring := algorithm.NewRing(16).AddNode(selfNode)

	svc.HandleJoin(context.Background(), selfNode, ring)

	nodes.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleJoinContinuesPastPushFailures(t *testing.T) {
	local := newFakeLocalStore()
	nodes := new(MockNodeClient)
	svc := NewRebalanceService(local, nodes, selfNode, zap.NewNop())

	ring := algorithm.NewRing(16).AddNode(selfNode).AddNode(nodeB)

	owned := 0
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		local.set(key, []byte("v"), int64(i+1))
		if owner, _ := ring.FindNode(key); owner == nodeB {
			owned++
		}
	}
	require.Greater(t, owned, 1, "expected several keys to land on the new node")
	nodes.On("Put", mock.Anything, nodeB, mock.Anything, mock.Anything).Return(int64(0), assert.AnError)

	// Failures are logged per key; the walk must not stop.
	svc.HandleJoin(context.Background(), nodeB, ring)
	nodes.AssertNumberOfCalls(t, "Put", owned)

	keys, err := local.AllKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 50)
}
