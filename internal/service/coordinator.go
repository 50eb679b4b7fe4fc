package service

import (
	"bytes"
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/model"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// Coordinator fans client operations out to the replica set of each key
// and enforces the write and read quorums. Any node can coordinate any
// key; the local node participates as an ordinary replica when it owns
// the key.
type Coordinator struct {
	rings   *RingManager
	store   store.LocalStore
	nodes   client.NodeClient
	handoff *HandoffService
	cfg     config.ReplicationConfig
	logger  *zap.Logger
}

// NewCoordinator creates a coordinator bound to the local store and the
// inter-node client.
func NewCoordinator(rings *RingManager, localStore store.LocalStore, nodes client.NodeClient, handoff *HandoffService, cfg config.ReplicationConfig, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		rings:   rings,
		store:   localStore,
		nodes:   nodes,
		handoff: handoff,
		cfg:     cfg,
		logger:  logger,
	}
}

// Put writes key to the replica set and waits for every replica to
// respond or time out. Returns the ack count; the write is accepted
// when acks reach the write quorum. Failed replicas get a hint so the
// write reaches them later even when the quorum was already met.
func (c *Coordinator) Put(ctx context.Context, key string, value []byte) (int, error) {
	return c.replicate(ctx, key, value)
}

// Delete removes key from the replica set. Deletes travel the same path
// as puts with the tombstone sentinel as the value, so quorum counting
// and hinting behave identically.
func (c *Coordinator) Delete(ctx context.Context, key string) (int, error) {
	return c.replicate(ctx, key, model.Tombstone)
}

func (c *Coordinator) replicate(ctx context.Context, key string, value []byte) (int, error) {
	targets := c.rings.Successors(key, c.cfg.Factor)
	if len(targets) == 0 {
		return 0, model.ErrWriteQuorumNotMet
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AggregateTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		acks int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := c.writeReplica(gctx, target, key, value); err != nil {
				c.logger.Warn("Replica write failed, storing hint",
					zap.String("target_node", target),
					zap.String("key", key),
					zap.Error(err))
				c.handoff.StoreHint(target, key, value)
				return nil
			}
			mu.Lock()
			acks++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if acks < c.cfg.WriteQuorum {
		c.logger.Error("Write quorum not met",
			zap.String("key", key),
			zap.Int("acks", acks),
			zap.Int("write_quorum", c.cfg.WriteQuorum))
		return acks, model.ErrWriteQuorumNotMet
	}
	return acks, nil
}

func (c *Coordinator) writeReplica(ctx context.Context, target, key string, value []byte) error {
	if target == c.rings.SelfID() {
		if model.IsTombstone(value) {
			return c.store.Delete(ctx, key)
		}
		_, err := c.store.Put(ctx, key, value)
		return err
	}
	if model.IsTombstone(value) {
		return c.nodes.Delete(ctx, target, key)
	}
	_, err := c.nodes.Put(ctx, target, key, value)
	return err
}

type replicaRead struct {
	found bool
	value []byte
	ts    int64
	err   error
}

// Get reads key from the replica set and returns the freshest value
// among the first read-quorum successful responses. Later timestamps
// win; a timestamp tie resolves to the lexicographically smallest
// value so every coordinator resolves the same way.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, error) {
	targets := c.rings.Successors(key, c.cfg.Factor)
	if len(targets) == 0 {
		return nil, model.ErrReadQuorumNotMet
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AggregateTimeout)
	defer cancel()

	results := make(chan replicaRead, len(targets))
	for _, target := range targets {
		go func(target string) {
			results <- c.readReplica(ctx, target, key)
		}(target)
	}

	var (
		responses int
		successes int
		best      *replicaRead
	)
	for responses < len(targets) && successes < c.cfg.ReadQuorum {
		select {
		case r := <-results:
			responses++
			if r.err != nil {
				continue
			}
			successes++
			if r.found && fresher(&r, best) {
				cp := r
				best = &cp
			}
		case <-ctx.Done():
			responses = len(targets)
		}
	}

	if successes < c.cfg.ReadQuorum {
		c.logger.Error("Read quorum not met",
			zap.String("key", key),
			zap.Int("successes", successes),
			zap.Int("read_quorum", c.cfg.ReadQuorum))
		return nil, model.ErrReadQuorumNotMet
	}
	if best == nil || model.IsTombstone(best.value) {
		return nil, model.ErrNotFound
	}
	return best.value, nil
}

// fresher reports whether candidate should replace best under
// last-write-wins resolution.
func fresher(candidate, best *replicaRead) bool {
	if best == nil {
		return true
	}
	if candidate.ts != best.ts {
		return candidate.ts > best.ts
	}
	return bytes.Compare(candidate.value, best.value) < 0
}

func (c *Coordinator) readReplica(ctx context.Context, target, key string) replicaRead {
	if target == c.rings.SelfID() {
		entry, found, err := c.store.Get(ctx, key)
		if err != nil {
			return replicaRead{err: err}
		}
		if !found {
			return replicaRead{}
		}
		return replicaRead{found: true, value: entry.Value, ts: entry.Timestamp}
	}

	res, err := c.nodes.Get(ctx, target, key)
	if err != nil {
		return replicaRead{err: err}
	}
	if !res.Found {
		return replicaRead{}
	}
	return replicaRead{found: true, value: res.Value, ts: res.Timestamp}
}
