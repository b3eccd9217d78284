package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arohanajit/WSN-Formation/internal/api/rest"
	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/config"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	manager, err := cluster.NewNetworkManager()
	require.NoError(t, err)
	router, err := rest.NewRouter(manager, config.DefaultConfig(), nil)
	require.NoError(t, err)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return NewClient(server.URL + "/")
}

func TestClient_StarFormation(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	health, err := c.CheckConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	added, err := c.Seed(ctx, "star")
	require.NoError(t, err)
	assert.Equal(t, 6, added)

	require.NoError(t, c.RegisterAsClusterHead(ctx, 111000, 0))
	delivered, err := c.SendBeacon(ctx, 111000)
	require.NoError(t, err)
	assert.Equal(t, 5, delivered)

	requests, err := c.SendJoinRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, requests, 5)

	election, err := c.ElectClusterHeads(ctx, 111000, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, election.Probability)
	assert.Equal(t, []uint64{222002, 222004}, election.ClusterHeads)

	for _, head := range []uint64{222002, 222004} {
		_, err := c.SendBeacon(ctx, head)
		require.NoError(t, err)
	}
	backups, err := c.IdentifyBackupClusterHeads(ctx)
	require.NoError(t, err)
	byAddress := make(map[uint64][]uint64)
	for _, b := range backups {
		byAddress[b.Address] = b.Backups
	}
	assert.Equal(t, []uint64{222001, 222003}, byAddress[222002])
	assert.Equal(t, []uint64{222003, 222005}, byAddress[222004])

	delivery, err := c.ReadSensorInput(ctx, 222005, 40000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{222005, 111000}, delivery.Path)

	_, err = c.AssignRole(ctx, 222003, api.RoleRequest{Role: "actuator", TriggerMessage: "Open floodgates"})
	require.NoError(t, err)
	triggers, err := c.RespondToSensorInput(ctx, 111000)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, uint64(222003), triggers[0].Address)
	assert.Equal(t, int64(40000), triggers[0].Reading)

	role, err := c.GetRole(ctx, 222003)
	require.NoError(t, err)
	assert.True(t, role.IsTriggering)

	ranked, err := c.Rank(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(111000), ranked[0].Address)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ClusterHeads)
	assert.Equal(t, []int{1, 5}, stats.NodesPerLevel)
	assert.Equal(t, uint64(1), stats.ElectionRound)

	addrs, err := c.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, addrs, 6)

	node, err := c.GetNodeAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(111000), node.Address)
	assert.Equal(t, []int64{40000}, node.Readings)
}

func TestClient_Errors(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	_, err := c.GetNode(ctx, 42)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "node not found")

	_, err = c.AddNode(ctx, api.AddNodeRequest{Address: 7, EnergyLevel: 1})
	require.NoError(t, err)
	_, err = c.AddNode(ctx, api.AddNodeRequest{Address: 7, EnergyLevel: 1})
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)

	require.NoError(t, c.Deactivate(ctx, 7))
	node, err := c.GetNode(ctx, 7)
	require.NoError(t, err)
	assert.False(t, node.IsActive)
	require.NoError(t, c.Activate(ctx, 7))

	unreachable := NewClient("http://127.0.0.1:1")
	_, err = unreachable.CheckConnection(ctx)
	assert.Error(t, err)
}
