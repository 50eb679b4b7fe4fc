package service

import (
	"context"

	"github.com/driftkv/driftkv/internal/algorithm"
	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// RebalanceService pushes locally held keys to a node that just joined
// the ring and now owns them as primary. Keys are copied, not moved;
// anti-entropy and replica reads tolerate the extra copy on the old
// owner.
type RebalanceService struct {
	store  store.LocalStore
	nodes  client.NodeClient
	selfID string
	logger *zap.Logger
}

// NewRebalanceService creates a rebalancer for the local store.
func NewRebalanceService(localStore store.LocalStore, nodes client.NodeClient, selfID string, logger *zap.Logger) *RebalanceService {
	return &RebalanceService{
		store:  localStore,
		nodes:  nodes,
		selfID: selfID,
		logger: logger,
	}
}

// HandleJoin copies every local key whose primary owner under ring is
// the new node. Individual push failures are logged and skipped; the
// anti-entropy loop repairs them later.
func (s *RebalanceService) HandleJoin(ctx context.Context, newNode string, ring *algorithm.Ring) {
	if newNode == s.selfID {
		return
	}

	keys, err := s.store.AllKeys(ctx)
	if err != nil {
		s.logger.Error("Failed to list local keys for rebalance", zap.Error(err))
		return
	}

	moved := 0
	for _, key := range keys {
		owner, ok := ring.FindNode(key)
		if !ok || owner != newNode {
			continue
		}
		entry, found, err := s.store.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		if _, err := s.nodes.Put(ctx, newNode, key, entry.Value); err != nil {
			s.logger.Warn("Failed to push key to new owner",
				zap.String("new_node", newNode),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		moved++
	}

	if moved > 0 {
		s.logger.Info("Rebalanced keys to new node",
			zap.String("new_node", newNode),
			zap.Int("moved", moved))
	}
}
