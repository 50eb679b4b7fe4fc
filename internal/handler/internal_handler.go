package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/metrics"
	"github.com/driftkv/driftkv/internal/store"
	"go.uber.org/zap"
)

// InternalHandler serves the five inter-node RPC verbs. These endpoints
// touch only the local store; no further fan-out happens here.
type InternalHandler struct {
	store   store.LocalStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewInternalHandler creates the inter-node RPC handler.
func NewInternalHandler(localStore store.LocalStore, m *metrics.Metrics, logger *zap.Logger) *InternalHandler {
	return &InternalHandler{store: localStore, metrics: m, logger: logger}
}

// Put handles PUT /internal/kv/{key}: a replica write.
func (h *InternalHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req client.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, client.PutResponse{Error: "invalid request body"})
		return
	}

	ts, err := h.store.Put(r.Context(), key, req.Value)
	h.metrics.RecordReplicaRPC("put", err)
	if err != nil {
		h.logger.Error("Replica put failed",
			zap.String("key", key),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, client.PutResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.PutResponse{OK: true, Timestamp: ts})
}

// Get handles GET /internal/kv/{key}: a replica read.
func (h *InternalHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	entry, found, err := h.store.Get(r.Context(), key)
	h.metrics.RecordReplicaRPC("get", err)
	if err != nil {
		h.logger.Error("Replica get failed",
			zap.String("key", key),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, client.GetResponse{Error: err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, client.GetResponse{OK: true, Found: false})
		return
	}
	writeJSON(w, http.StatusOK, client.GetResponse{OK: true, Found: true, Value: entry.Value, Timestamp: entry.Timestamp})
}

// Delete handles DELETE /internal/kv/{key}: a replica delete.
func (h *InternalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	err := h.store.Delete(r.Context(), key)
	h.metrics.RecordReplicaRPC("delete", err)
	if err != nil {
		h.logger.Error("Replica delete failed",
			zap.String("key", key),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, client.DeleteResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.DeleteResponse{OK: true})
}

// Meta handles GET /internal/meta: the full key -> timestamp map used
// by anti-entropy.
func (h *InternalHandler) Meta(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.AllMeta(r.Context())
	h.metrics.RecordReplicaRPC("meta", err)
	if err != nil {
		h.logger.Error("Meta read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, client.MetaResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.MetaResponse{OK: true, Meta: meta})
}

// Ping handles GET /internal/ping: a liveness probe.
func (h *InternalHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, client.PingResponse{OK: true})
}
