package store

import (
	"context"
	"time"

	"github.com/driftkv/driftkv/internal/model"
)

// LocalStore is the node-local key-value engine. Implementations are
// durable and serialize their own mutations; callers may use them from
// any goroutine.
type LocalStore interface {
	// Put stores value under key and returns the wall-clock millisecond
	// timestamp assigned to the write.
	Put(ctx context.Context, key string, value []byte) (int64, error)
	// Get returns the entry for key, or found=false when absent.
	Get(ctx context.Context, key string) (*model.Entry, bool, error)
	// Delete removes key outright. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// AllKeys returns every stored key.
	AllKeys(ctx context.Context) ([]string, error)
	// AllMeta returns key -> timestamp for every stored key.
	AllMeta(ctx context.Context) (map[string]int64, error)
	Close() error
}

// HintStore persists undelivered writes per target node. Retrieval order
// for a target matches enqueue order.
type HintStore interface {
	StoreHint(ctx context.Context, hint *model.Hint) error
	// HintsForNode returns up to limit hints for a target, oldest first.
	HintsForNode(ctx context.Context, targetNodeID string, limit int) ([]*model.Hint, error)
	DeleteHint(ctx context.Context, hintID string) error
	// DeleteHintsForNode drops every hint for a target and returns how
	// many were removed.
	DeleteHintsForNode(ctx context.Context, targetNodeID string) (int, error)
	HintCount(ctx context.Context, targetNodeID string) (int, error)
	// Targets returns the node IDs that currently have pending hints.
	Targets(ctx context.Context) ([]string, error)
	Close() error
}

// IdempotencyStore caches client write responses keyed by idempotency
// key so retried requests observe the original outcome.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}
