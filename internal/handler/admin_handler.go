package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftkv/driftkv/internal/service"
	"go.uber.org/zap"
)

// AdminHandler serves the operator membership API. Membership changes
// apply to the local ring only; operators (or gossip) are responsible
// for telling every node.
type AdminHandler struct {
	rings  *service.RingManager
	logger *zap.Logger
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(rings *service.RingManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{rings: rings, logger: logger}
}

type addNodeRequest struct {
	NodeID string `json:"node_id"`
}

type nodesResponse struct {
	OK    bool     `json:"ok"`
	Nodes []string `json:"nodes,omitempty"`
	Err   string   `json:"error,omitempty"`
}

// AddNode handles POST /v1/nodes.
func (h *AdminHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, nodesResponse{Err: "node_id is required"})
		return
	}

	h.rings.AddNode(req.NodeID)
	writeJSON(w, http.StatusOK, nodesResponse{OK: true, Nodes: h.rings.ListNodes()})
}

// RemoveNode handles DELETE /v1/nodes/{id}.
func (h *AdminHandler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	if nodeID == h.rings.SelfID() {
		writeJSON(w, http.StatusBadRequest, nodesResponse{Err: "cannot remove the local node"})
		return
	}

	h.rings.RemoveNode(nodeID)
	writeJSON(w, http.StatusOK, nodesResponse{OK: true, Nodes: h.rings.ListNodes()})
}

// ListNodes handles GET /v1/nodes.
func (h *AdminHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nodesResponse{OK: true, Nodes: h.rings.ListNodes()})
}
