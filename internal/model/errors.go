package model

import "errors"

// Aggregate outcomes surfaced to clients. Per-replica failures are never
// surfaced directly; the coordinator folds them into these.
var (
	ErrWriteQuorumNotMet = errors.New("write quorum not met")
	ErrReadQuorumNotMet  = errors.New("read quorum not met")
	ErrNotFound          = errors.New("key not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
