package model

import "time"

// Hint is a buffered write destined for a replica that was unreachable
// at write time. Value carries the Tombstone sentinel for deletes.
type Hint struct {
	HintID       string
	TargetNodeID string
	Key          string
	Value        []byte
	EnqueuedAt   time.Time
}

// IsDelete reports whether the hint replays as a delete.
func (h *Hint) IsDelete() bool {
	return IsTombstone(h.Value)
}
