// Package handler implements the node's HTTP surfaces: the client API,
// the admin membership API, and the inter-node RPC verbs.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftkv/driftkv/internal/metrics"
	"github.com/driftkv/driftkv/internal/model"
	"github.com/driftkv/driftkv/internal/service"
	"go.uber.org/zap"
)

// KVHandler serves the client key-value API. Every operation is
// coordinated by the receiving node regardless of key ownership.
type KVHandler struct {
	coordinator *service.Coordinator
	idempotency *service.IdempotencyService
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewKVHandler creates the client API handler.
func NewKVHandler(coordinator *service.Coordinator, idempotency *service.IdempotencyService, m *metrics.Metrics, logger *zap.Logger) *KVHandler {
	return &KVHandler{
		coordinator: coordinator,
		idempotency: idempotency,
		metrics:     m,
		logger:      logger,
	}
}

type putKeyRequest struct {
	Value []byte `json:"value"`
}

type putKeyResponse struct {
	OK   bool   `json:"ok"`
	Acks int    `json:"acks,omitempty"`
	Err  string `json:"error,omitempty"`
}

type getKeyResponse struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Put handles PUT /v1/keys/{key}. Retried requests carrying the same
// Idempotency-Key return the cached outcome of the first successful
// attempt; failed attempts are not cached, so a retry after one runs the
// write again.
func (h *KVHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	idemKey := r.Header.Get("Idempotency-Key")

	if cached, found := h.idempotency.Check(r.Context(), idemKey); found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	var req putKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, putKeyResponse{Err: "invalid request body"})
		return
	}
	if model.IsTombstone(req.Value) {
		writeJSON(w, http.StatusBadRequest, putKeyResponse{Err: "reserved value"})
		return
	}

	acks, err := h.coordinator.Put(r.Context(), key, req.Value)
	if err != nil {
		h.metrics.RecordQuorumFailure("put")
		writeJSON(w, http.StatusServiceUnavailable, putKeyResponse{Acks: acks, Err: err.Error()})
		return
	}

	resp := putKeyResponse{OK: true, Acks: acks}
	if body, err := json.Marshal(resp); err == nil {
		h.idempotency.Store(r.Context(), idemKey, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/keys/{key}.
func (h *KVHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	value, err := h.coordinator.Get(r.Context(), key)
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, getKeyResponse{Err: "key not found"})
	case errors.Is(err, model.ErrReadQuorumNotMet):
		h.metrics.RecordQuorumFailure("get")
		writeJSON(w, http.StatusServiceUnavailable, getKeyResponse{Err: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, getKeyResponse{Err: err.Error()})
	default:
		writeJSON(w, http.StatusOK, getKeyResponse{OK: true, Value: value})
	}
}

// Delete handles DELETE /v1/keys/{key}. Deleting an absent key still
// succeeds once the tombstone reaches a write quorum.
func (h *KVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	idemKey := r.Header.Get("Idempotency-Key")

	if cached, found := h.idempotency.Check(r.Context(), idemKey); found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	acks, err := h.coordinator.Delete(r.Context(), key)
	if err != nil {
		h.metrics.RecordQuorumFailure("delete")
		writeJSON(w, http.StatusServiceUnavailable, putKeyResponse{Acks: acks, Err: err.Error()})
		return
	}

	resp := putKeyResponse{OK: true, Acks: acks}
	if body, err := json.Marshal(resp); err == nil {
		h.idempotency.Store(r.Context(), idemKey, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
