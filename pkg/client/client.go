// Package client talks to the simulation service over HTTP
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arohanajit/WSN-Formation/internal/utils"
	"github.com/arohanajit/WSN-Formation/pkg/api"
)

const apiPrefix = "/api/v1"

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client is an HTTP client for the simulation API
type Client struct {
	BaseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckConnection calls the health endpoint
func (c *Client) CheckConnection(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// AddNode registers a node and returns its registration index
func (c *Client) AddNode(ctx context.Context, req api.AddNodeRequest) (int, error) {
	var out api.AddNodeResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/nodes", req, &out); err != nil {
		return 0, err
	}
	return out.Index, nil
}

// Seed registers a named reference topology
func (c *Client) Seed(ctx context.Context, topology string) (int, error) {
	var out api.SeedResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/seed", api.SeedRequest{Topology: topology}, &out); err != nil {
		return 0, err
	}
	return out.Added, nil
}

// GetNode fetches a node by address
func (c *Client) GetNode(ctx context.Context, address uint64) (api.Node, error) {
	var out api.Node
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/nodes/%d", apiPrefix, address), nil, &out)
	return out, err
}

// GetNodeAt fetches a node by registration index
func (c *Client) GetNodeAt(ctx context.Context, index int) (api.Node, error) {
	var out api.Node
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/nodes/index/%d", apiPrefix, index), nil, &out)
	return out, err
}

// ListNodes returns every address in registration order
func (c *Client) ListNodes(ctx context.Context) ([]uint64, error) {
	var out api.AddressList
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/nodes", nil, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}

// Deactivate simulates a node failure
func (c *Client) Deactivate(ctx context.Context, address uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/deactivate", apiPrefix, address), nil, nil)
}

// Activate brings a failed node back
func (c *Client) Activate(ctx context.Context, address uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/activate", apiPrefix, address), nil, nil)
}

// RegisterAsClusterHead bootstraps a cluster head at level
func (c *Client) RegisterAsClusterHead(ctx context.Context, address uint64, level int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/cluster-head", apiPrefix, address),
		api.ClusterHeadRequest{Level: &level}, nil)
}

// SendBeacon broadcasts a beacon from address
func (c *Client) SendBeacon(ctx context.Context, address uint64) (int, error) {
	var out api.BeaconResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/beacon", apiPrefix, address), nil, &out); err != nil {
		return 0, err
	}
	return out.Delivered, nil
}

// SendJoinRequests runs one join request round
func (c *Client) SendJoinRequests(ctx context.Context) ([]api.JoinRequest, error) {
	var out api.JoinRequestsResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/join-requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// ElectClusterHeads runs an election at head. A nil probability uses the
// service default.
func (c *Client) ElectClusterHeads(ctx context.Context, head uint64, probability *int) (api.ElectionResponse, error) {
	var out api.ElectionResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/elections", apiPrefix, head),
		api.ElectionRequest{Probability: probability}, &out)
	return out, err
}

// IdentifyBackupClusterHeads recomputes backup cluster heads network-wide
func (c *Client) IdentifyBackupClusterHeads(ctx context.Context) ([]api.BackupAssignment, error) {
	var out api.BackupsResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/backups", nil, &out); err != nil {
		return nil, err
	}
	return out.Assignments, nil
}

// ReadSensorInput injects a reading at address
func (c *Client) ReadSensorInput(ctx context.Context, address uint64, reading int64) (api.DeliveryResponse, error) {
	var out api.DeliveryResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/readings", apiPrefix, address),
		api.ReadingRequest{Reading: &reading}, &out)
	return out, err
}

// RespondToSensorInput triggers matching actuators below address
func (c *Client) RespondToSensorInput(ctx context.Context, address uint64) ([]api.Trigger, error) {
	var out api.ResponseResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/nodes/%d/responses", apiPrefix, address), nil, &out); err != nil {
		return nil, err
	}
	return out.Triggers, nil
}

// Rank returns every node ordered by remaining energy, highest first
func (c *Client) Rank(ctx context.Context) ([]api.RankedNode, error) {
	var out api.RankingResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/ranking", nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// Stats summarises the network
func (c *Client) Stats(ctx context.Context) (api.Stats, error) {
	var out api.Stats
	err := c.do(ctx, http.MethodGet, apiPrefix+"/stats", nil, &out)
	return out, err
}

// GetRole fetches the role entry of a node
func (c *Client) GetRole(ctx context.Context, address uint64) (api.Role, error) {
	var out api.Role
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/roles/%d", apiPrefix, address), nil, &out)
	return out, err
}

// AssignRole changes the role of a node
func (c *Client) AssignRole(ctx context.Context, address uint64, req api.RoleRequest) (api.Role, error) {
	var out api.Role
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/roles/%d", apiPrefix, address), req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(utils.RequestIDHeader, utils.GenerateRequestID())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
