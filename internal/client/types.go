package client

// Wire types for the inter-node RPC surface. Both the HTTP client and
// the internal handler marshal these.

// PutRequest is the body of an inter-node put.
type PutRequest struct {
	Value []byte `json:"value"`
}

// PutResponse acknowledges a replica write with the timestamp the
// replica assigned.
type PutResponse struct {
	OK        bool   `json:"ok"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// GetResponse carries a replica read result. OK with Found false reports
// a missing key; OK false reports a storage failure.
type GetResponse struct {
	OK        bool   `json:"ok"`
	Found     bool   `json:"found"`
	Value     []byte `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DeleteResponse acknowledges a replica delete.
type DeleteResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// MetaResponse carries a replica's full key -> timestamp map.
type MetaResponse struct {
	OK    bool             `json:"ok"`
	Meta  map[string]int64 `json:"meta,omitempty"`
	Error string           `json:"error,omitempty"`
}

// PingResponse acknowledges a liveness probe.
type PingResponse struct {
	OK bool `json:"ok"`
}
