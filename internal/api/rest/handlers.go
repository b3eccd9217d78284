package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/roles"
	"github.com/arohanajit/WSN-Formation/internal/utils"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

var (
	errBadRequest      = errors.New("bad request")
	errMissingField    = errors.New("missing required field")
	errPayloadTooLarge = errors.New("payload too large")
)

// NetworkHandler serves the simulation API on top of a NetworkManager
type NetworkHandler struct {
	manager            cluster.NetworkManager
	cache              *viewCache
	logger             *zap.Logger
	defaultProbability int
}

// NewNetworkHandler creates a new instance of NetworkHandler
func NewNetworkHandler(manager cluster.NetworkManager, cacheSize, defaultProbability int, logger *zap.Logger) (*NetworkHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := newViewCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}
	return &NetworkHandler{
		manager:            manager,
		cache:              cache,
		logger:             logger,
		defaultProbability: defaultProbability,
	}, nil
}

// RegisterRoutes registers the simulation routes on r
func (h *NetworkHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/nodes", h.handleAddNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes", h.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/index/{index}", h.handleGetNodeAt).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{address}", h.handleGetNode).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{address}/deactivate", h.handleDeactivate).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/activate", h.handleActivate).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/cluster-head", h.handleRegisterClusterHead).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/beacon", h.handleSendBeacon).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/elections", h.handleElect).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/readings", h.handleReading).Methods(http.MethodPost)
	r.HandleFunc("/nodes/{address}/responses", h.handleRespond).Methods(http.MethodPost)
	r.HandleFunc("/seed", h.handleSeed).Methods(http.MethodPost)
	r.HandleFunc("/join-requests", h.handleJoinRequests).Methods(http.MethodPost)
	r.HandleFunc("/backups", h.handleBackups).Methods(http.MethodPost)
	r.HandleFunc("/ranking", h.handleRanking).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/roles/{address}", h.handleGetRole).Methods(http.MethodGet)
	r.HandleFunc("/roles/{address}", h.handleAssignRole).Methods(http.MethodPost)
}

// handleHealth handles GET /health requests
func (h *NetworkHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "ok",
		Nodes:   stats.Nodes,
		Version: h.manager.Version(),
	})
}

// handleAddNode handles POST /nodes requests
func (h *NetworkHandler) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req api.AddNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	index, err := h.manager.AddNode(r.Context(), cluster.NodeSpec{
		Address:     cluster.Address(req.Address),
		EnergyLevel: req.EnergyLevel,
		WithinRange: addressesIn(req.WithinRangeNodes),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.AddNodeResponse{Address: req.Address, Index: index})
}

// handleSeed handles POST /seed requests
func (h *NetworkHandler) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req api.SeedRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var specs []cluster.NodeSpec
	switch {
	case req.Topology != "" && len(req.Nodes) > 0:
		h.writeError(w, r, fmt.Errorf("%w: topology and nodes are mutually exclusive", errBadRequest))
		return
	case req.Topology != "":
		var ok bool
		if specs, ok = cluster.Topology(req.Topology); !ok {
			h.writeError(w, r, fmt.Errorf("%w: unknown topology %q", errBadRequest, req.Topology))
			return
		}
	default:
		specs = make([]cluster.NodeSpec, len(req.Nodes))
		for i, n := range req.Nodes {
			specs[i] = cluster.NodeSpec{
				Address:     cluster.Address(n.Address),
				EnergyLevel: n.EnergyLevel,
				WithinRange: addressesIn(n.WithinRangeNodes),
			}
		}
	}

	added, err := h.manager.Seed(r.Context(), specs)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("seeded %d of %d nodes: %w", added, len(specs), err))
		return
	}
	writeJSON(w, http.StatusCreated, api.SeedResponse{Added: added})
}

// handleListNodes handles GET /nodes requests
func (h *NetworkHandler) handleListNodes(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.manager.ListNodes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AddressList{Addresses: addressesOut(addrs)})
}

// handleGetNode handles GET /nodes/{address} requests
func (h *NetworkHandler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	version := h.manager.Version()
	if view, ok := h.cache.get(addr, version); ok {
		writeJSON(w, http.StatusOK, view)
		return
	}

	node, err := h.manager.GetNode(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := nodeView(node)
	h.cache.add(addr, version, view)
	writeJSON(w, http.StatusOK, view)
}

// handleGetNodeAt handles GET /nodes/index/{index} requests
func (h *NetworkHandler) handleGetNodeAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid index %q", errBadRequest, mux.Vars(r)["index"]))
		return
	}

	node, err := h.manager.GetNodeAt(r.Context(), index)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeView(node))
}

// handleDeactivate handles POST /nodes/{address}/deactivate requests
func (h *NetworkHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.manager.Deactivate)
}

// handleActivate handles POST /nodes/{address}/activate requests
func (h *NetworkHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.manager.Activate)
}

func (h *NetworkHandler) setActive(w http.ResponseWriter, r *http.Request, fn func(context.Context, cluster.Address) error) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := fn(r.Context(), addr); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegisterClusterHead handles POST /nodes/{address}/cluster-head requests
func (h *NetworkHandler) handleRegisterClusterHead(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ClusterHeadRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Level == nil {
		h.writeError(w, r, fmt.Errorf("%w: level", errMissingField))
		return
	}

	if err := h.manager.RegisterAsClusterHead(r.Context(), *req.Level, addr); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendBeacon handles POST /nodes/{address}/beacon requests
func (h *NetworkHandler) handleSendBeacon(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	delivered, err := h.manager.SendBeacon(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BeaconResponse{Sender: uint64(addr), Delivered: delivered})
}

// handleJoinRequests handles POST /join-requests requests
func (h *NetworkHandler) handleJoinRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.manager.SendJoinRequests(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]api.JoinRequest, len(requests))
	for i, jr := range requests {
		out[i] = api.JoinRequest{From: uint64(jr.From), To: uint64(jr.To)}
	}
	writeJSON(w, http.StatusOK, api.JoinRequestsResponse{Requests: out})
}

// handleElect handles POST /nodes/{address}/elections requests
func (h *NetworkHandler) handleElect(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ElectionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	probability := h.defaultProbability
	if req.Probability != nil {
		probability = *req.Probability
	}

	result, err := h.manager.ElectClusterHeads(r.Context(), addr, probability)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, electionView(result))
}

// handleBackups handles POST /backups requests
func (h *NetworkHandler) handleBackups(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.manager.IdentifyBackupClusterHeads(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]api.BackupAssignment, len(assignments))
	for i, a := range assignments {
		out[i] = api.BackupAssignment{
			Address: uint64(a.Address),
			Uplinks: addressesOut(a.Uplinks),
			Backups: addressesOut(a.Backups),
		}
	}
	writeJSON(w, http.StatusOK, api.BackupsResponse{Assignments: out})
}

// handleReading handles POST /nodes/{address}/readings requests
func (h *NetworkHandler) handleReading(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.ReadingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Reading == nil {
		h.writeError(w, r, fmt.Errorf("%w: reading", errMissingField))
		return
	}

	delivery, err := h.manager.ReadSensorInput(r.Context(), *req.Reading, addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryView(delivery))
}

// handleRespond handles POST /nodes/{address}/responses requests
func (h *NetworkHandler) handleRespond(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	triggers, err := h.manager.RespondToSensorInput(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]api.Trigger, len(triggers))
	for i, t := range triggers {
		out[i] = api.Trigger{
			Address: uint64(t.Address),
			Reading: t.Reading,
			Message: t.Entry.TriggerMessage,
		}
	}
	writeJSON(w, http.StatusOK, api.ResponseResult{Triggers: out})
}

// handleRanking handles GET /ranking requests
func (h *NetworkHandler) handleRanking(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.manager.RankByEnergy(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]api.RankedNode, len(nodes))
	for i, n := range nodes {
		out[i] = api.RankedNode{
			Address:     uint64(n.Address),
			EnergyLevel: n.EnergyLevel,
			NodeType:    n.NodeType.String(),
			IsActive:    n.IsActive,
		}
	}
	writeJSON(w, http.StatusOK, api.RankingResponse{Nodes: out})
}

// handleStats handles GET /stats requests
func (h *NetworkHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsView(stats))
}

// handleGetRole handles GET /roles/{address} requests
func (h *NetworkHandler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.manager.GetRole(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roleView(entry))
}

// handleAssignRole handles POST /roles/{address} requests
func (h *NetworkHandler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	addr, err := addressVar(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req api.RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	role, err := roles.ParseRole(req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	assignment := cluster.RoleAssignment{
		Role:             role,
		TriggerMessage:   req.TriggerMessage,
		TriggerThreshold: req.TriggerThreshold,
	}
	if req.TriggerCondition != nil {
		condition, err := roles.ParseCondition(*req.TriggerCondition)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		assignment.TriggerCondition = &condition
	}

	entry, err := h.manager.AssignRole(r.Context(), addr, assignment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roleView(entry))
}

func addressVar(r *http.Request) (cluster.Address, error) {
	raw := mux.Vars(r)["address"]
	addr, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return cluster.NoAddress, fmt.Errorf("%w: invalid address %q", errBadRequest, raw)
	}
	return cluster.Address(addr), nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	return bodyError(json.NewDecoder(r.Body).Decode(v))
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty,
// including chunked requests of unknown length that carry no bytes
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return bodyError(err)
}

func bodyError(err error) error {
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errPayloadTooLarge
	}
	return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, cluster.ErrNodeNotFound),
		errors.Is(err, cluster.ErrIndexOutOfRange),
		errors.Is(err, roles.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrDuplicateAddress):
		return http.StatusConflict
	case errors.Is(err, cluster.ErrInvalidProbability),
		errors.Is(err, cluster.ErrInvalidAddress),
		errors.Is(err, cluster.ErrInvalidLevel),
		errors.Is(err, roles.ErrInvalidRole),
		errors.Is(err, roles.ErrInvalidCondition),
		errors.Is(err, errBadRequest),
		errors.Is(err, errMissingField):
		return http.StatusBadRequest
	case errors.Is(err, cluster.ErrNodeInactive),
		errors.Is(err, cluster.ErrLevelUnassigned),
		errors.Is(err, cluster.ErrNotClusterHead):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *NetworkHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", utils.RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Debug("Request rejected", fields...)
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
