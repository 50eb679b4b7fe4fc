package algorithm

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// Ring is an immutable consistent-hash ring snapshot with virtual nodes.
// Topology changes build a new snapshot; readers can hold a *Ring without
// synchronization. Given the same vnode count and node set, every node
// builds a bitwise-identical ring.
type Ring struct {
	vnodeCount int
	nodes      map[string]struct{}
	positions  []vnodePosition
}

// vnodePosition is one hash position owned by a physical node.
type vnodePosition struct {
	pos    uint64
	nodeID string
}

// NewRing creates an empty ring with the given virtual node count.
func NewRing(vnodeCount int) *Ring {
	return &Ring{
		vnodeCount: vnodeCount,
		nodes:      make(map[string]struct{}),
	}
}

// Hash64 computes the ring position of arbitrary bytes: the big-endian
// uint64 of the first 8 bytes of SHA-256. Keys and virtual nodes share
// this function so ownership is consistent across processes.
func Hash64(data []byte) uint64 {
	sum := sha256.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8])
}

// vnodeHash hashes the canonical identity of virtual node i of a node.
// The identity format is "<nodeID>-vnode-<i>".
func vnodeHash(nodeID string, i int) uint64 {
	return Hash64([]byte(fmt.Sprintf("%s-vnode-%d", nodeID, i)))
}

// VnodeCount returns the number of virtual nodes per physical node.
func (r *Ring) VnodeCount() int {
	return r.vnodeCount
}

// Contains reports whether nodeID is a member of the ring.
func (r *Ring) Contains(nodeID string) bool {
	_, ok := r.nodes[nodeID]
	return ok
}

// Nodes returns the physical node IDs in sorted order.
func (r *Ring) Nodes() []string {
	out := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of physical nodes.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// AddNode returns a ring that includes nodeID. Adding a member that is
// already present returns the receiver unchanged.
func (r *Ring) AddNode(nodeID string) *Ring {
	if r.Contains(nodeID) {
		return r
	}

	next := &Ring{
		vnodeCount: r.vnodeCount,
		nodes:      make(map[string]struct{}, len(r.nodes)+1),
		positions:  make([]vnodePosition, 0, len(r.positions)+r.vnodeCount),
	}
	for id := range r.nodes {
		next.nodes[id] = struct{}{}
	}
	next.nodes[nodeID] = struct{}{}

	next.positions = append(next.positions, r.positions...)
	for i := 0; i < r.vnodeCount; i++ {
		next.positions = append(next.positions, vnodePosition{
			pos:    vnodeHash(nodeID, i),
			nodeID: nodeID,
		})
	}
	sortPositions(next.positions)

	return next
}

// RemoveNode returns a ring without nodeID and all of its virtual nodes.
// Removing an absent member returns the receiver unchanged.
func (r *Ring) RemoveNode(nodeID string) *Ring {
	if !r.Contains(nodeID) {
		return r
	}

	next := &Ring{
		vnodeCount: r.vnodeCount,
		nodes:      make(map[string]struct{}, len(r.nodes)-1),
		positions:  make([]vnodePosition, 0, len(r.positions)-r.vnodeCount),
	}
	for id := range r.nodes {
		if id != nodeID {
			next.nodes[id] = struct{}{}
		}
	}
	for _, p := range r.positions {
		if p.nodeID != nodeID {
			next.positions = append(next.positions, p)
		}
	}

	return next
}

// FindNode returns the primary owner of key, or false on an empty ring.
func (r *Ring) FindNode(key string) (string, bool) {
	if len(r.positions) == 0 {
		return "", false
	}
	idx := r.search(Hash64([]byte(key)))
	return r.positions[idx].nodeID, true
}

// Successors returns up to n distinct physical nodes encountered walking
// the ring clockwise from the key's position. The first element is the
// primary; fewer than n nodes are returned when the ring is smaller.
func (r *Ring) Successors(key string, n int) []string {
	if len(r.positions) == 0 || n <= 0 {
		return nil
	}

	start := r.search(Hash64([]byte(key)))
	result := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for i := 0; i < len(r.positions) && len(result) < n; i++ {
		p := r.positions[(start+i)%len(r.positions)]
		if _, ok := seen[p.nodeID]; ok {
			continue
		}
		seen[p.nodeID] = struct{}{}
		result = append(result, p.nodeID)
	}

	return result
}

// search finds the index of the first position at or clockwise-after pos,
// wrapping to 0 past the end.
func (r *Ring) search(pos uint64) int {
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].pos >= pos
	})
	if idx == len(r.positions) {
		idx = 0
	}
	return idx
}

// sortPositions orders by hash position, ties broken by node ID so that
// equal-position vnodes sort identically on every node.
func sortPositions(ps []vnodePosition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].pos != ps[j].pos {
			return ps[i].pos < ps[j].pos
		}
		return ps[i].nodeID < ps[j].nodeID
	})
}
