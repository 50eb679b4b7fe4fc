package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/model"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// HandoffService queues writes for replicas that could not be reached
// and replays them in arrival order once the target answers again. One
// flush runs per target at a time; a delivery failure halts the flush
// so the remaining hints keep their order.
type HandoffService struct {
	hints  store.HintStore
	nodes  client.NodeClient
	cfg    config.HandoffConfig
	logger *zap.Logger

	mu       sync.Mutex
	flushing map[string]*sync.Mutex
}

// NewHandoffService creates a handoff service over the given hint
// backend.
func NewHandoffService(hints store.HintStore, nodes client.NodeClient, cfg config.HandoffConfig, logger *zap.Logger) *HandoffService {
	return &HandoffService{
		hints:    hints,
		nodes:    nodes,
		cfg:      cfg,
		logger:   logger,
		flushing: make(map[string]*sync.Mutex),
	}
}

// StoreHint records a missed write for target. Failures to persist the
// hint are logged and swallowed; the caller's quorum accounting does
// not depend on hint storage.
func (s *HandoffService) StoreHint(target, key string, value []byte) {
	hint := &model.Hint{
		HintID:       uuid.New().String(),
		TargetNodeID: target,
		Key:          key,
		Value:        value,
		EnqueuedAt:   time.Now(),
	}
	if err := s.hints.StoreHint(context.Background(), hint); err != nil {
		s.logger.Error("Failed to store hint",
			zap.String("target_node", target),
			zap.String("key", key),
			zap.Error(err))
		return
	}
	s.logger.Debug("Hint stored",
		zap.String("target_node", target),
		zap.String("key", key),
		zap.String("hint_id", hint.HintID))
}

func (s *HandoffService) targetLock(target string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.flushing[target]
	if !ok {
		lock = &sync.Mutex{}
		s.flushing[target] = lock
	}
	return lock
}

// Flush replays queued hints for target oldest first. It stops at the
// first delivery failure and leaves the remaining hints queued.
// Returns the number of hints delivered.
func (s *HandoffService) Flush(ctx context.Context, target string) (int, error) {
	lock := s.targetLock(target)
	lock.Lock()
	defer lock.Unlock()

	delivered := 0
	for {
		batch, err := s.hints.HintsForNode(ctx, target, s.cfg.FlushBatch)
		if err != nil {
			return delivered, err
		}
		if len(batch) == 0 {
			return delivered, nil
		}

		for _, hint := range batch {
			if err := s.deliver(ctx, hint); err != nil {
				s.logger.Warn("Hint delivery failed, halting flush",
					zap.String("target_node", target),
					zap.String("key", hint.Key),
					zap.Int("delivered", delivered),
					zap.Error(err))
				return delivered, err
			}
			if err := s.hints.DeleteHint(ctx, hint.HintID); err != nil {
				s.logger.Error("Failed to delete delivered hint",
					zap.String("hint_id", hint.HintID),
					zap.Error(err))
				return delivered, err
			}
			delivered++
		}
	}
}

func (s *HandoffService) deliver(ctx context.Context, hint *model.Hint) error {
	if hint.IsDelete() {
		return s.nodes.Delete(ctx, hint.TargetNodeID, hint.Key)
	}
	_, err := s.nodes.Put(ctx, hint.TargetNodeID, hint.Key, hint.Value)
	return err
}

// ClearForNode drops all queued hints for a node that left the ring.
func (s *HandoffService) ClearForNode(ctx context.Context, target string) {
	n, err := s.hints.DeleteHintsForNode(ctx, target)
	if err != nil {
		s.logger.Error("Failed to clear hints for departed node",
			zap.String("target_node", target),
			zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Cleared hints for departed node",
			zap.String("target_node", target),
			zap.Int("count", n))
	}
}

// HintCount returns the number of queued hints for target.
func (s *HandoffService) HintCount(ctx context.Context, target string) (int, error) {
	return s.hints.HintCount(ctx, target)
}

// Targets returns the nodes that currently have queued hints.
func (s *HandoffService) Targets(ctx context.Context) ([]string, error) {
	return s.hints.Targets(ctx)
}
