package service

import (
	"sync"
	"sync/atomic"

	"github.com/driftkv/driftkv/internal/algorithm"
	"go.uber.org/zap"
)

// TopologyHook is invoked asynchronously after a membership change with
// the node that changed and the snapshot that includes the change.
type TopologyHook func(nodeID string, ring *algorithm.Ring)

// RingManager owns the current ring snapshot on a node. Membership
// changes are serialized and each produces exactly one new snapshot;
// reads always observe a fully-applied snapshot via atomic pointer load.
// At startup the ring contains only the local node.
type RingManager struct {
	mu      sync.Mutex
	current atomic.Pointer[algorithm.Ring]
	selfID  string
	logger  *zap.Logger

	onJoin  TopologyHook
	onLeave TopologyHook
}

// NewRingManager creates a manager whose ring contains the local node.
func NewRingManager(selfID string, vnodeCount int, logger *zap.Logger) *RingManager {
	m := &RingManager{
		selfID: selfID,
		logger: logger,
	}
	m.current.Store(algorithm.NewRing(vnodeCount).AddNode(selfID))
	return m
}

// SetJoinHook registers the hook dispatched after a node joins. Must be
// called before the manager starts receiving membership changes.
func (m *RingManager) SetJoinHook(hook TopologyHook) {
	m.onJoin = hook
}

// SetLeaveHook registers the hook dispatched after a node leaves.
func (m *RingManager) SetLeaveHook(hook TopologyHook) {
	m.onLeave = hook
}

// SelfID returns the local node's identity.
func (m *RingManager) SelfID() string {
	return m.selfID
}

// Current returns the most recently applied ring snapshot.
func (m *RingManager) Current() *algorithm.Ring {
	return m.current.Load()
}

// AddNode adds a node to the ring. Adding a present member is a no-op
// and dispatches nothing. The rebalance hook runs concurrently; its
// failure never surfaces here.
func (m *RingManager) AddNode(nodeID string) {
	m.mu.Lock()
	cur := m.current.Load()
	next := cur.AddNode(nodeID)
	if next == cur {
		m.mu.Unlock()
		m.logger.Debug("Node already in ring", zap.String("node_id", nodeID))
		return
	}
	m.current.Store(next)
	m.mu.Unlock()

	m.logger.Info("Node added to ring",
		zap.String("node_id", nodeID),
		zap.Int("ring_size", next.Size()))

	if m.onJoin != nil {
		go m.onJoin(nodeID, next)
	}
}

// RemoveNode removes a node from the ring. Removing an absent member is
// a no-op.
func (m *RingManager) RemoveNode(nodeID string) {
	m.mu.Lock()
	cur := m.current.Load()
	next := cur.RemoveNode(nodeID)
	if next == cur {
		m.mu.Unlock()
		m.logger.Debug("Node not in ring", zap.String("node_id", nodeID))
		return
	}
	m.current.Store(next)
	m.mu.Unlock()

	m.logger.Info("Node removed from ring",
		zap.String("node_id", nodeID),
		zap.Int("ring_size", next.Size()))

	if m.onLeave != nil {
		go m.onLeave(nodeID, next)
	}
}

// FindNode returns the primary owner of key.
func (m *RingManager) FindNode(key string) (string, bool) {
	return m.Current().FindNode(key)
}

// Successors returns up to n distinct replica owners for key.
func (m *RingManager) Successors(key string, n int) []string {
	return m.Current().Successors(key, n)
}

// ListNodes returns the current members in sorted order.
func (m *RingManager) ListNodes() []string {
	return m.Current().Nodes()
}
