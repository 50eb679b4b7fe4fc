package service

import (
	"context"
	"sync"
	"time"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// AntiEntropyService periodically reconciles the local store with every
// live peer so replicas converge even when writes were missed without a
// hint being recorded. Each sync compares key timestamps in both
// directions and then flushes queued hints for the peer.
type AntiEntropyService struct {
	rings   *RingManager
	store   store.LocalStore
	nodes   client.NodeClient
	handoff *HandoffService
	cfg     config.AntiEntropyConfig
	logger  *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewAntiEntropyService creates the reconciliation loop. Call Start to
// begin syncing.
func NewAntiEntropyService(rings *RingManager, localStore store.LocalStore, nodes client.NodeClient, handoff *HandoffService, cfg config.AntiEntropyConfig, logger *zap.Logger) *AntiEntropyService {
	return &AntiEntropyService{
		rings:   rings,
		store:   localStore,
		nodes:   nodes,
		handoff: handoff,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the periodic sync loop.
func (s *AntiEntropyService) Start() {
	go s.run()
	s.logger.Info("Anti-entropy service started",
		zap.Duration("sync_interval", s.cfg.SyncInterval))
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *AntiEntropyService) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *AntiEntropyService) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick runs one full reconciliation round against every live peer.
func (s *AntiEntropyService) Tick(ctx context.Context) {
	self := s.rings.SelfID()
	var wg sync.WaitGroup
	for _, peer := range s.rings.ListNodes() {
		if peer == self {
			continue
		}
		if err := s.nodes.Ping(ctx, peer); err != nil {
			s.logger.Debug("Skipping unreachable peer",
				zap.String("peer", peer),
				zap.Error(err))
			continue
		}
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			s.SyncWith(ctx, peer)
		}(peer)
	}
	wg.Wait()
}

// SyncWith reconciles both directions with one peer: pull keys where
// the peer is fresher, push keys where the local copy is fresher, then
// flush queued hints for the peer.
func (s *AntiEntropyService) SyncWith(ctx context.Context, peer string) {
	peerMeta, err := s.nodes.AllMeta(ctx, peer)
	if err != nil {
		s.logger.Warn("Failed to fetch peer metadata",
			zap.String("peer", peer),
			zap.Error(err))
		return
	}
	localMeta, err := s.store.AllMeta(ctx)
	if err != nil {
		s.logger.Error("Failed to read local metadata", zap.Error(err))
		return
	}

	pulled, pushed := 0, 0

	for key, peerTS := range peerMeta {
		localTS, ok := localMeta[key]
		if ok && localTS >= peerTS {
			continue
		}
		res, err := s.nodes.Get(ctx, peer, key)
		if err != nil || !res.Found {
			continue
		}
		if _, err := s.store.Put(ctx, key, res.Value); err != nil {
			s.logger.Error("Failed to store pulled key",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		pulled++
	}

	for key, localTS := range localMeta {
		peerTS, ok := peerMeta[key]
		if ok && peerTS >= localTS {
			continue
		}
		entry, found, err := s.store.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		if _, err := s.nodes.Put(ctx, peer, key, entry.Value); err != nil {
			s.logger.Warn("Failed to push key to peer",
				zap.String("peer", peer),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		pushed++
	}

	if pulled > 0 || pushed > 0 {
		s.logger.Info("Synced with peer",
			zap.String("peer", peer),
			zap.Int("pulled", pulled),
			zap.Int("pushed", pushed))
	}

	if delivered, err := s.handoff.Flush(ctx, peer); err != nil {
		s.logger.Debug("Hint flush stopped",
			zap.String("peer", peer),
			zap.Int("delivered", delivered),
			zap.Error(err))
	} else if delivered > 0 {
		s.logger.Info("Flushed hints to peer",
			zap.String("peer", peer),
			zap.Int("delivered", delivered))
	}
}
