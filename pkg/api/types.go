// Package api holds the JSON documents exchanged between the simulation
// service and its clients.
package api

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness
type HealthResponse struct {
	Status  string `json:"status"`
	Nodes   int    `json:"nodes"`
	Version uint64 `json:"version"`
}

// AddNodeRequest registers a node
type AddNodeRequest struct {
	Address          uint64   `json:"address"`
	EnergyLevel      uint64   `json:"energyLevel"`
	WithinRangeNodes []uint64 `json:"withinRangeNodes"`
}

// AddNodeResponse returns the registration index of a new node
type AddNodeResponse struct {
	Address uint64 `json:"address"`
	Index   int    `json:"index"`
}

// SeedRequest registers a named reference topology or an explicit node list
type SeedRequest struct {
	Topology string           `json:"topology,omitempty"`
	Nodes    []AddNodeRequest `json:"nodes,omitempty"`
}

// SeedResponse reports how many nodes a seed request registered
type SeedResponse struct {
	Added int `json:"added"`
}

// AddressList lists node addresses
type AddressList struct {
	Addresses []uint64 `json:"addresses"`
}

// Beacon is a level announcement a node received
type Beacon struct {
	Sender           uint64   `json:"sender"`
	NextNetworkLevel int      `json:"nextNetworkLevel"`
	SenderNeighbours []uint64 `json:"senderNeighbours"`
}

// Node is the public view of a sensor node
type Node struct {
	Address            uint64   `json:"address"`
	EnergyLevel        uint64   `json:"energyLevel"`
	NetworkLevel       int      `json:"networkLevel"`
	NodeType           string   `json:"nodeType"`
	IsActive           bool     `json:"isActive"`
	Parent             uint64   `json:"parent"`
	ChildNodes         []uint64 `json:"childNodes"`
	WithinRangeNodes   []uint64 `json:"withinRangeNodes"`
	JoinRequestNodes   []uint64 `json:"joinRequestNodes"`
	Beacons            []Beacon `json:"beacons"`
	Readings           []int64  `json:"readings"`
	BackupClusterHeads []uint64 `json:"backupClusterHeads"`
}

// ClusterHeadRequest bootstraps a cluster head at a level
type ClusterHeadRequest struct {
	Level *int `json:"level"`
}

// BeaconResponse reports a beacon broadcast
type BeaconResponse struct {
	Sender    uint64 `json:"sender"`
	Delivered int    `json:"delivered"`
}

// JoinRequest is a node asking a cluster head to adopt it
type JoinRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// JoinRequestsResponse lists the join requests sent in one round
type JoinRequestsResponse struct {
	Requests []JoinRequest `json:"requests"`
}

// ElectionRequest elects among a head's pending join requests. A nil
// probability uses the service default.
type ElectionRequest struct {
	Probability *int `json:"probability,omitempty"`
}

// ElectionOutcome is the decision for one candidate
type ElectionOutcome struct {
	Address  uint64 `json:"address"`
	NodeType string `json:"nodeType"`
	Roll     int    `json:"roll"`
}

// ElectionResponse summarises an election
type ElectionResponse struct {
	Head         uint64            `json:"head"`
	Round        uint64            `json:"round"`
	Probability  int               `json:"probability"`
	Outcomes     []ElectionOutcome `json:"outcomes"`
	ClusterHeads []uint64          `json:"clusterHeads"`
	Members      []uint64          `json:"members"`
}

// BackupAssignment lists the backup cluster heads of one node
type BackupAssignment struct {
	Address uint64   `json:"address"`
	Uplinks []uint64 `json:"uplinks"`
	Backups []uint64 `json:"backups"`
}

// BackupsResponse lists every backup assignment computed
type BackupsResponse struct {
	Assignments []BackupAssignment `json:"assignments"`
}

// ReadingRequest injects a sensor reading
type ReadingRequest struct {
	Reading *int64 `json:"reading"`
}

// Hop is one step of a delivered reading
type Hop struct {
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Rerouted bool   `json:"rerouted"`
}

// DeliveryResponse describes how far a reading propagated
type DeliveryResponse struct {
	Origin      uint64   `json:"origin"`
	Reading     int64    `json:"reading"`
	Path        []uint64 `json:"path"`
	Hops        []Hop    `json:"hops"`
	ReachedSink bool     `json:"reachedSink"`
	Rerouted    bool     `json:"rerouted"`
}

// Trigger is an actuator fired in response to sensor input
type Trigger struct {
	Address uint64 `json:"address"`
	Reading int64  `json:"reading"`
	Message string `json:"message"`
}

// ResponseResult lists the actuators a response triggered
type ResponseResult struct {
	Triggers []Trigger `json:"triggers"`
}

// RankedNode is one entry of the energy ranking
type RankedNode struct {
	Address     uint64 `json:"address"`
	EnergyLevel uint64 `json:"energyLevel"`
	NodeType    string `json:"nodeType"`
	IsActive    bool   `json:"isActive"`
}

// RankingResponse lists nodes by remaining energy, highest first
type RankingResponse struct {
	Nodes []RankedNode `json:"nodes"`
}

// Stats summarises the network
type Stats struct {
	Nodes         int    `json:"nodes"`
	Active        int    `json:"active"`
	Inactive      int    `json:"inactive"`
	LevelCount    int    `json:"levelCount"`
	Levels        []int  `json:"levels"`
	NodesPerLevel []int  `json:"nodesPerLevel"`
	ClusterHeads  int    `json:"clusterHeads"`
	Members       int    `json:"members"`
	Unassigned    int    `json:"unassigned"`
	ElectionRound uint64 `json:"electionRound"`
}

// Role is the public view of a node's role entry
type Role struct {
	Address          uint64 `json:"address"`
	Role             string `json:"role"`
	IsTriggering     bool   `json:"isTriggeringExternalService"`
	TriggerMessage   string `json:"triggerMessage"`
	TriggerThreshold int64  `json:"triggerThreshold"`
	TriggerCondition string `json:"triggerCondition"`
}

// RoleRequest assigns a role. Nil trigger fields keep the current value.
type RoleRequest struct {
	Role             string  `json:"role"`
	TriggerMessage   string  `json:"triggerMessage,omitempty"`
	TriggerThreshold *int64  `json:"triggerThreshold,omitempty"`
	TriggerCondition *string `json:"triggerCondition,omitempty"`
}
