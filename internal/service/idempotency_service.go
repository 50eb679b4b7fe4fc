package service

import (
	"context"
	"time"

	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// IdempotencyService caches serialized responses keyed by the client's
// Idempotency-Key header so a retried write returns the original
// outcome instead of re-executing.
type IdempotencyService struct {
	store  store.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotencyService creates an idempotency cache with the given
// response TTL.
func NewIdempotencyService(idemStore store.IdempotencyStore, ttl time.Duration, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		store:  idemStore,
		ttl:    ttl,
		logger: logger,
	}
}

// Check returns the cached response for key if one exists. Lookup
// failures are treated as a miss so the request proceeds.
func (s *IdempotencyService) Check(ctx context.Context, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed",
			zap.String("idempotency_key", key),
			zap.Error(err))
		return nil, false
	}
	return data, found
}

// Store caches a serialized response for key. Storage failures are
// logged and swallowed; the response has already been computed.
func (s *IdempotencyService) Store(ctx context.Context, key string, response []byte) {
	if key == "" {
		return
	}
	if err := s.store.Set(ctx, key, response, s.ttl); err != nil {
		s.logger.Warn("Failed to cache idempotent response",
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
}

// Healthy reports whether the backing store is reachable.
func (s *IdempotencyService) Healthy(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}
