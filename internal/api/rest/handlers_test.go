package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/config"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

// setupTestRouter creates a router backed by a fresh in-memory network
func setupTestRouter(t *testing.T) (*mux.Router, *cluster.NetworkManagerImpl) {
	t.Helper()
	manager, err := cluster.NewNetworkManager()
	require.NoError(t, err)

	router, err := NewRouter(manager, config.DefaultConfig(), nil)
	require.NoError(t, err)
	return router, manager
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, APIPrefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v), rec.Body.String())
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

// formThreeLayer drives the reference three-layer formation over HTTP
func formThreeLayer(t *testing.T, h http.Handler) {
	t.Helper()
	expectStatus(t, doRequest(t, h, http.MethodPost, "/seed", api.SeedRequest{Topology: "three-layer"}), http.StatusCreated)

	level := 0
	expectStatus(t, doRequest(t, h, http.MethodPost, "/nodes/111000/cluster-head", api.ClusterHeadRequest{Level: &level}), http.StatusNoContent)

	beacon := func(addrs ...uint64) {
		for _, a := range addrs {
			expectStatus(t, doRequest(t, h, http.MethodPost, fmt.Sprintf("/nodes/%d/beacon", a), nil), http.StatusOK)
		}
	}
	elect := func(heads ...uint64) {
		for _, a := range heads {
			expectStatus(t, doRequest(t, h, http.MethodPost, fmt.Sprintf("/nodes/%d/elections", a), nil), http.StatusOK)
		}
	}
	join := func() {
		expectStatus(t, doRequest(t, h, http.MethodPost, "/join-requests", nil), http.StatusOK)
	}

	beacon(111000)
	join()
	elect(111000)
	beacon(222002, 222004)
	join()
	elect(222002, 222004)
	beacon(222006, 222008, 222009)
	join()
	expectStatus(t, doRequest(t, h, http.MethodPost, "/backups", nil), http.StatusOK)
	elect(222006, 222008, 222009)
}

func TestNetworkHandler_Health(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	expectStatus(t, rec, http.StatusOK)
	var health api.HealthResponse
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestNetworkHandler_AddAndGetNode(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"valid node", api.AddNodeRequest{Address: 111000, EnergyLevel: 100, WithinRangeNodes: []uint64{222001}}, http.StatusCreated},
		{"duplicate address", api.AddNodeRequest{Address: 111000, EnergyLevel: 5}, http.StatusConflict},
		{"reserved address", api.AddNodeRequest{Address: 0}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/nodes", tt.body)
			expectStatus(t, rec, tt.wantStatus)
		})
	}

	rec := doRequest(t, router, http.MethodGet, "/nodes/111000", nil)
	expectStatus(t, rec, http.StatusOK)
	var node api.Node
	decodeBody(t, rec, &node)
	assert.Equal(t, uint64(111000), node.Address)
	assert.Equal(t, "Unassigned", node.NodeType)
	assert.Equal(t, -1, node.NetworkLevel)
	assert.Equal(t, []uint64{222001}, node.WithinRangeNodes)
	assert.Empty(t, node.Readings)

	rec = doRequest(t, router, http.MethodGet, "/nodes/index/0", nil)
	expectStatus(t, rec, http.StatusOK)

	expectStatus(t, doRequest(t, router, http.MethodGet, "/nodes/index/1", nil), http.StatusNotFound)
	expectStatus(t, doRequest(t, router, http.MethodGet, "/nodes/index/x", nil), http.StatusBadRequest)
	expectStatus(t, doRequest(t, router, http.MethodGet, "/nodes/999", nil), http.StatusNotFound)
	expectStatus(t, doRequest(t, router, http.MethodGet, "/nodes/abc", nil), http.StatusBadRequest)
}

func TestNetworkHandler_Seed(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"})
	expectStatus(t, rec, http.StatusCreated)
	var seeded api.SeedResponse
	decodeBody(t, rec, &seeded)
	assert.Equal(t, 6, seeded.Added)

	rec = doRequest(t, router, http.MethodGet, "/nodes", nil)
	expectStatus(t, rec, http.StatusOK)
	var list api.AddressList
	decodeBody(t, rec, &list)
	assert.Equal(t, []uint64{111000, 222001, 222002, 222003, 222004, 222005}, list.Addresses)

	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "ring"}), http.StatusBadRequest)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"}), http.StatusConflict)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{
		Topology: "star",
		Nodes:    []api.AddNodeRequest{{Address: 1}},
	}), http.StatusBadRequest)

	rec = doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{
		Nodes: []api.AddNodeRequest{{Address: 1, EnergyLevel: 3}, {Address: 2, EnergyLevel: 4}},
	})
	expectStatus(t, rec, http.StatusCreated)
	decodeBody(t, rec, &seeded)
	assert.Equal(t, 2, seeded.Added)
}

func TestNetworkHandler_FormationErrors(t *testing.T) {
	router, _ := setupTestRouter(t)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"}), http.StatusCreated)

	negative := -1
	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"cluster head without level", http.MethodPost, "/nodes/111000/cluster-head", map[string]int{}, http.StatusBadRequest},
		{"cluster head negative level", http.MethodPost, "/nodes/111000/cluster-head", api.ClusterHeadRequest{Level: &negative}, http.StatusBadRequest},
		{"cluster head unknown node", http.MethodPost, "/nodes/42/cluster-head", api.ClusterHeadRequest{Level: new(int)}, http.StatusNotFound},
		{"beacon without level", http.MethodPost, "/nodes/222001/beacon", nil, http.StatusUnprocessableEntity},
		{"beacon unknown node", http.MethodPost, "/nodes/42/beacon", nil, http.StatusNotFound},
		{"election bad probability", http.MethodPost, "/nodes/111000/elections", api.ElectionRequest{Probability: intPtr(101)}, http.StatusBadRequest},
		{"election at unassigned node", http.MethodPost, "/nodes/222001/elections", nil, http.StatusUnprocessableEntity},
		{"reading without value", http.MethodPost, "/nodes/222001/readings", map[string]int{}, http.StatusBadRequest},
		{"reading unknown node", http.MethodPost, "/nodes/42/readings", api.ReadingRequest{Reading: int64Ptr(1)}, http.StatusNotFound},
		{"respond unknown node", http.MethodPost, "/nodes/42/responses", nil, http.StatusNotFound},
		{"deactivate unknown node", http.MethodPost, "/nodes/42/deactivate", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, tt.method, tt.path, tt.body)
			expectStatus(t, rec, tt.wantStatus)

			var errResp api.ErrorResponse
			decodeBody(t, rec, &errResp)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestNetworkHandler_StarFormation(t *testing.T) {
	router, _ := setupTestRouter(t)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"}), http.StatusCreated)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/111000/cluster-head", api.ClusterHeadRequest{Level: new(int)}), http.StatusNoContent)

	rec := doRequest(t, router, http.MethodPost, "/nodes/111000/beacon", nil)
	expectStatus(t, rec, http.StatusOK)
	var beacon api.BeaconResponse
	decodeBody(t, rec, &beacon)
	assert.Equal(t, 5, beacon.Delivered)

	rec = doRequest(t, router, http.MethodPost, "/join-requests", nil)
	expectStatus(t, rec, http.StatusOK)
	var joins api.JoinRequestsResponse
	decodeBody(t, rec, &joins)
	assert.Len(t, joins.Requests, 5)

	rec = doRequest(t, router, http.MethodPost, "/nodes/111000/elections", api.ElectionRequest{Probability: intPtr(50)})
	expectStatus(t, rec, http.StatusOK)
	var election api.ElectionResponse
	decodeBody(t, rec, &election)
	assert.Equal(t, uint64(1), election.Round)
	assert.Equal(t, []uint64{222002, 222004}, election.ClusterHeads)
	assert.Equal(t, []uint64{222001, 222003, 222005}, election.Members)
	assert.Equal(t, []int{67, 23, 57, 7, 78}, []int{
		election.Outcomes[0].Roll, election.Outcomes[1].Roll, election.Outcomes[2].Roll,
		election.Outcomes[3].Roll, election.Outcomes[4].Roll,
	})

	rec = doRequest(t, router, http.MethodGet, "/ranking", nil)
	expectStatus(t, rec, http.StatusOK)
	var ranking api.RankingResponse
	decodeBody(t, rec, &ranking)
	require.Len(t, ranking.Nodes, 6)
	for i := 1; i < len(ranking.Nodes); i++ {
		assert.GreaterOrEqual(t, ranking.Nodes[i-1].EnergyLevel, ranking.Nodes[i].EnergyLevel)
	}
}

func TestNetworkHandler_ElectionBodyIsOptional(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		wantStatus      int
		wantProbability int
	}{
		{"empty chunked body", "", http.StatusOK, 50},
		{"explicit probability", `{"probability":40}`, http.StatusOK, 40},
		{"truncated body", `{"probability":`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t)
			expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"}), http.StatusCreated)
			expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/111000/cluster-head", api.ClusterHeadRequest{Level: new(int)}), http.StatusNoContent)
			expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/111000/beacon", nil), http.StatusOK)
			expectStatus(t, doRequest(t, router, http.MethodPost, "/join-requests", nil), http.StatusOK)

			// A reader of unknown length makes the request look chunked
			req := httptest.NewRequest(http.MethodPost, APIPrefix+"/nodes/111000/elections",
				io.NopCloser(strings.NewReader(tt.body)))
			require.Equal(t, int64(-1), req.ContentLength)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			expectStatus(t, rec, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var election api.ElectionResponse
			decodeBody(t, rec, &election)
			assert.Equal(t, tt.wantProbability, election.Probability)
			assert.Len(t, election.Outcomes, 5)
		})
	}
}

func TestNetworkHandler_ThreeLayerFormation(t *testing.T) {
	router, _ := setupTestRouter(t)
	formThreeLayer(t, router)

	rec := doRequest(t, router, http.MethodGet, "/stats", nil)
	expectStatus(t, rec, http.StatusOK)
	var stats api.Stats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 16, stats.Nodes)
	assert.Equal(t, 4, stats.LevelCount)
	assert.Equal(t, []int{0, 1, 2, 3}, stats.Levels)
	assert.Equal(t, []int{1, 5, 6, 4}, stats.NodesPerLevel)
	assert.Equal(t, 8, stats.ClusterHeads)
	assert.Equal(t, uint64(5), stats.ElectionRound)

	rec = doRequest(t, router, http.MethodGet, "/nodes/222007", nil)
	expectStatus(t, rec, http.StatusOK)
	var node api.Node
	decodeBody(t, rec, &node)
	assert.Equal(t, "MemberNode", node.NodeType)
	assert.Equal(t, uint64(222002), node.Parent)
	assert.Equal(t, []uint64{222003}, node.BackupClusterHeads)

	// Failover through the backup cluster head
	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/222002/deactivate", nil), http.StatusNoContent)
	rec = doRequest(t, router, http.MethodPost, "/nodes/222007/readings", api.ReadingRequest{Reading: int64Ptr(700700)})
	expectStatus(t, rec, http.StatusOK)
	var delivery api.DeliveryResponse
	decodeBody(t, rec, &delivery)
	assert.Equal(t, []uint64{222007, 222003, 111000}, delivery.Path)
	assert.True(t, delivery.Rerouted)
	assert.True(t, delivery.ReachedSink)

	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/222002/beacon", nil), http.StatusUnprocessableEntity)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/222002/activate", nil), http.StatusNoContent)
}

func TestNetworkHandler_RolesAndResponses(t *testing.T) {
	router, _ := setupTestRouter(t)
	formThreeLayer(t, router)

	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/222001/readings", api.ReadingRequest{Reading: int64Ptr(37011)}), http.StatusOK)

	rec := doRequest(t, router, http.MethodGet, "/roles/111000", nil)
	expectStatus(t, rec, http.StatusOK)
	var role api.Role
	decodeBody(t, rec, &role)
	assert.Equal(t, "Controller", role.Role)

	rec = doRequest(t, router, http.MethodPost, "/roles/222005", api.RoleRequest{Role: "actuator", TriggerMessage: "Activating sprinklers!"})
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &role)
	assert.Equal(t, "Actuator", role.Role)
	assert.Equal(t, int64(37000), role.TriggerThreshold)
	assert.Equal(t, "GreaterThan", role.TriggerCondition)

	eq := "eq"
	rec = doRequest(t, router, http.MethodPost, "/roles/222003", api.RoleRequest{
		Role:             "actuator",
		TriggerMessage:   "Exact match",
		TriggerThreshold: int64Ptr(1),
		TriggerCondition: &eq,
	})
	expectStatus(t, rec, http.StatusOK)

	bogus := "sometimes"
	expectStatus(t, doRequest(t, router, http.MethodPost, "/roles/222003", api.RoleRequest{Role: "wizard"}), http.StatusBadRequest)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/roles/222003", api.RoleRequest{Role: "actuator", TriggerCondition: &bogus}), http.StatusBadRequest)
	expectStatus(t, doRequest(t, router, http.MethodGet, "/roles/42", nil), http.StatusNotFound)

	rec = doRequest(t, router, http.MethodPost, "/nodes/111000/responses", nil)
	expectStatus(t, rec, http.StatusOK)
	var result api.ResponseResult
	decodeBody(t, rec, &result)
	require.Len(t, result.Triggers, 1)
	assert.Equal(t, api.Trigger{Address: 222005, Reading: 37011, Message: "Activating sprinklers!"}, result.Triggers[0])

	rec = doRequest(t, router, http.MethodGet, "/roles/222005", nil)
	decodeBody(t, rec, &role)
	assert.True(t, role.IsTriggering)
}

func TestNetworkHandler_NodeViewCache(t *testing.T) {
	router, manager := setupTestRouter(t)
	expectStatus(t, doRequest(t, router, http.MethodPost, "/seed", api.SeedRequest{Topology: "star"}), http.StatusCreated)

	var node api.Node
	decodeBody(t, doRequest(t, router, http.MethodGet, "/nodes/222001", nil), &node)
	assert.True(t, node.IsActive)

	// A mutation bumps the version, so the cached view must not be served
	expectStatus(t, doRequest(t, router, http.MethodPost, "/nodes/222001/deactivate", nil), http.StatusNoContent)
	decodeBody(t, doRequest(t, router, http.MethodGet, "/nodes/222001", nil), &node)
	assert.False(t, node.IsActive)
	assert.Equal(t, uint64(7), manager.Version())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{cluster.ErrNodeNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", cluster.ErrIndexOutOfRange), http.StatusNotFound},
		{cluster.ErrDuplicateAddress, http.StatusConflict},
		{cluster.ErrInvalidProbability, http.StatusBadRequest},
		{cluster.ErrNodeInactive, http.StatusUnprocessableEntity},
		{cluster.ErrLevelUnassigned, http.StatusUnprocessableEntity},
		{cluster.ErrNotClusterHead, http.StatusUnprocessableEntity},
		{errPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func intPtr(v int) *int {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
