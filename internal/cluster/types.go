package cluster

import "fmt"

// Address identifies a sensor node in the network
type Address uint64

// NoAddress marks an unset parent link. It is never a valid node address.
const NoAddress Address = 0

// LevelUnset is the network level of a node no beacon has reached yet
const LevelUnset = -1

// SinkLevel is the network level reserved for the sink node
const SinkLevel = 0

// NodeType represents the role a node plays in the clustering hierarchy
type NodeType int

const (
	// NodeTypeUnassigned indicates the node has not been elected yet
	NodeTypeUnassigned NodeType = iota
	// NodeTypeMemberNode indicates the node reports to a cluster head
	NodeTypeMemberNode
	// NodeTypeClusterHead indicates the node aggregates readings for its members
	NodeTypeClusterHead
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeUnassigned:
		return "Unassigned"
	case NodeTypeMemberNode:
		return "MemberNode"
	case NodeTypeClusterHead:
		return "ClusterHead"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// Beacon is a level announcement received from a neighbouring node
type Beacon struct {
	IsSent                 bool      `json:"isSent"`
	NextNetworkLevel       int       `json:"nextNetworkLevel"`
	SenderAddress          Address   `json:"senderAddress"`
	SenderWithinRangeNodes []Address `json:"senderWithinRangeNodes"`
}

// SensorReading is a single entry of a node's reading log
type SensorReading struct {
	Reading int64 `json:"reading"`
	Exists  bool  `json:"exists"`
}

// Node represents a sensor node in the network.
// Field order matches the persisted record layout.
type Node struct {
	Address            Address         `json:"address"`
	EnergyLevel        uint64          `json:"energyLevel"`
	NetworkLevel       int             `json:"networkLevel"`
	NodeType           NodeType        `json:"nodeType"`
	IsActive           bool            `json:"isActive"`
	Parent             Address         `json:"parent"`
	ChildNodes         []Address       `json:"childNodes"`
	WithinRangeNodes   []Address       `json:"withinRangeNodes"`
	JoinRequestNodes   []Address       `json:"joinRequestNodes"`
	Beacons            []Beacon        `json:"beacons"`
	SensorReadings     []SensorReading `json:"sensorReadings"`
	BackupClusterHeads []Address       `json:"backupClusterHeads"`
}

func newNode(address Address, energyLevel uint64, withinRange []Address) *Node {
	return &Node{
		Address:            address,
		EnergyLevel:        energyLevel,
		NetworkLevel:       LevelUnset,
		NodeType:           NodeTypeUnassigned,
		IsActive:           true,
		Parent:             NoAddress,
		ChildNodes:         []Address{},
		WithinRangeNodes:   append([]Address{}, withinRange...),
		JoinRequestNodes:   []Address{},
		Beacons:            []Beacon{{}},
		SensorReadings:     []SensorReading{{}},
		BackupClusterHeads: []Address{},
	}
}

// HasLevel reports whether a beacon (or bootstrap) has assigned the node a level
func (n *Node) HasLevel() bool {
	return n.NetworkLevel != LevelUnset
}

// IsSink reports whether the node is the level-0 root
func (n *Node) IsSink() bool {
	return n.NetworkLevel == SinkLevel
}

// HasParent reports whether the node has joined a cluster head
func (n *Node) HasParent() bool {
	return n.Parent != NoAddress
}

// InRange reports whether addr is one of the node's neighbours
func (n *Node) InRange(addr Address) bool {
	return containsAddress(n.WithinRangeNodes, addr)
}

// ReceivedBeacons returns the beacon log without the sentinel entry
func (n *Node) ReceivedBeacons() []Beacon {
	if len(n.Beacons) <= 1 {
		return nil
	}
	return n.Beacons[1:]
}

// Readings returns the recorded reading values without the sentinel entry
func (n *Node) Readings() []int64 {
	if len(n.SensorReadings) <= 1 {
		return nil
	}
	values := make([]int64, 0, len(n.SensorReadings)-1)
	for _, r := range n.SensorReadings[1:] {
		if r.Exists {
			values = append(values, r.Reading)
		}
	}
	return values
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	c := *n
	c.ChildNodes = append([]Address{}, n.ChildNodes...)
	c.WithinRangeNodes = append([]Address{}, n.WithinRangeNodes...)
	c.JoinRequestNodes = append([]Address{}, n.JoinRequestNodes...)
	c.BackupClusterHeads = append([]Address{}, n.BackupClusterHeads...)
	c.SensorReadings = append([]SensorReading{}, n.SensorReadings...)
	c.Beacons = make([]Beacon, len(n.Beacons))
	for i, b := range n.Beacons {
		b.SenderWithinRangeNodes = append([]Address{}, b.SenderWithinRangeNodes...)
		c.Beacons[i] = b
	}
	return &c
}

func containsAddress(list []Address, addr Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
