package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftkv/driftkv/internal/model"
)

// MemoryHintStore implements HintStore with per-target in-memory FIFO
// lists. This is the default backend; hints do not survive a restart.
type MemoryHintStore struct {
	mu    sync.RWMutex
	hints map[string][]*model.Hint
}

// NewMemoryHintStore creates an empty in-memory hint store.
func NewMemoryHintStore() *MemoryHintStore {
	return &MemoryHintStore{
		hints: make(map[string][]*model.Hint),
	}
}

// StoreHint appends a hint to the tail of its target's list.
func (s *MemoryHintStore) StoreHint(ctx context.Context, hint *model.Hint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hints[hint.TargetNodeID] = append(s.hints[hint.TargetNodeID], hint)
	return nil
}

// HintsForNode returns up to limit hints for a target, oldest first.
func (s *MemoryHintStore) HintsForNode(ctx context.Context, targetNodeID string, limit int) ([]*model.Hint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.hints[targetNodeID]
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]*model.Hint, len(pending))
	copy(out, pending)
	return out, nil
}

// DeleteHint removes a hint by ID.
func (s *MemoryHintStore) DeleteHint(ctx context.Context, hintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for target, pending := range s.hints {
		for i, hint := range pending {
			if hint.HintID != hintID {
				continue
			}
			remaining := append(pending[:i:i], pending[i+1:]...)
			if len(remaining) == 0 {
				delete(s.hints, target)
			} else {
				s.hints[target] = remaining
			}
			return nil
		}
	}
	return fmt.Errorf("hint %s not found", hintID)
}

// DeleteHintsForNode drops every hint queued for a target.
func (s *MemoryHintStore) DeleteHintsForNode(ctx context.Context, targetNodeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.hints[targetNodeID])
	delete(s.hints, targetNodeID)
	return count, nil
}

// HintCount returns the number of pending hints for a target.
func (s *MemoryHintStore) HintCount(ctx context.Context, targetNodeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hints[targetNodeID]), nil
}

// Targets returns the node IDs with pending hints.
func (s *MemoryHintStore) Targets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]string, 0, len(s.hints))
	for target := range s.hints {
		targets = append(targets, target)
	}
	return targets, nil
}

// Close implements HintStore.
func (s *MemoryHintStore) Close() error {
	return nil
}
