package cluster

import (
	"sort"
)

// Registry owns every node of the simulated network, keyed by address.
// It is not safe for concurrent use; NetworkManager serialises access.
type Registry struct {
	nodes  map[Address]*Node
	order  []Address
	levels map[int]int // network level -> number of nodes on it
}

// NewRegistry creates an empty node registry
func NewRegistry() *Registry {
	return &Registry{
		nodes:  make(map[Address]*Node),
		order:  make([]Address, 0),
		levels: make(map[int]int),
	}
}

// AddNode registers a new node and returns its registration index
func (r *Registry) AddNode(address Address, energyLevel uint64, withinRange []Address) (int, error) {
	if address == NoAddress {
		return 0, nodeErr("add", address, ErrInvalidAddress)
	}
	if _, exists := r.nodes[address]; exists {
		return 0, nodeErr("add", address, ErrDuplicateAddress)
	}

	r.nodes[address] = newNode(address, energyLevel, withinRange)
	r.order = append(r.order, address)
	return len(r.order) - 1, nil
}

// GetNode returns a copy of the node registered under address
func (r *Registry) GetNode(address Address) (*Node, error) {
	n, err := r.node("get", address)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// GetNodeAt returns a copy of the node at registration index i
func (r *Registry) GetNodeAt(i int) (*Node, error) {
	if i < 0 || i >= len(r.order) {
		return nil, &IndexError{Index: i, Count: len(r.order)}
	}
	return r.nodes[r.order[i]].Clone(), nil
}

// Count returns the number of registered nodes
func (r *Registry) Count() int {
	return len(r.order)
}

// Addresses returns every registered address in registration order
func (r *Registry) Addresses() []Address {
	return append([]Address{}, r.order...)
}

// Nodes returns copies of every node in registration order
func (r *Registry) Nodes() []*Node {
	out := make([]*Node, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.nodes[addr].Clone())
	}
	return out
}

// Has reports whether address is registered
func (r *Registry) Has(address Address) bool {
	_, ok := r.nodes[address]
	return ok
}

// Deactivate marks a node inactive. Deactivating an inactive node is a no-op.
func (r *Registry) Deactivate(address Address) error {
	n, err := r.node("deactivate", address)
	if err != nil {
		return err
	}
	n.IsActive = false
	return nil
}

// Activate marks a node active again. Activating an active node is a no-op.
func (r *Registry) Activate(address Address) error {
	n, err := r.node("activate", address)
	if err != nil {
		return err
	}
	n.IsActive = true
	return nil
}

// LevelCount returns the number of distinct network levels assigned so far
func (r *Registry) LevelCount() int {
	return len(r.levels)
}

// Levels returns the assigned network levels in ascending order
func (r *Registry) Levels() []int {
	out := make([]int, 0, len(r.levels))
	for level := range r.levels {
		out = append(out, level)
	}
	sort.Ints(out)
	return out
}

// NodesAtLevel returns the addresses on a network level in registration order
func (r *Registry) NodesAtLevel(level int) []Address {
	out := make([]Address, 0, r.levels[level])
	for _, addr := range r.order {
		if r.nodes[addr].NetworkLevel == level {
			out = append(out, addr)
		}
	}
	return out
}

// Restore replaces the registry content with previously persisted nodes,
// keeping the given order as registration order.
func (r *Registry) Restore(nodes []*Node) error {
	fresh := NewRegistry()
	for _, n := range nodes {
		if n.Address == NoAddress {
			return nodeErr("restore", n.Address, ErrInvalidAddress)
		}
		if _, exists := fresh.nodes[n.Address]; exists {
			return nodeErr("restore", n.Address, ErrDuplicateAddress)
		}
		c := n.Clone()
		if len(c.Beacons) == 0 {
			c.Beacons = []Beacon{{}}
		}
		if len(c.SensorReadings) == 0 {
			c.SensorReadings = []SensorReading{{}}
		}
		fresh.nodes[c.Address] = c
		fresh.order = append(fresh.order, c.Address)
		if c.HasLevel() {
			fresh.levels[c.NetworkLevel]++
		}
	}
	*r = *fresh
	return nil
}

func (r *Registry) node(op string, address Address) (*Node, error) {
	n, ok := r.nodes[address]
	if !ok {
		return nil, nodeErr(op, address, ErrNodeNotFound)
	}
	return n, nil
}

// setLevel assigns a network level and keeps the per-level bookkeeping
func (r *Registry) setLevel(n *Node, level int) {
	if n.NetworkLevel == level {
		return
	}
	if n.HasLevel() {
		r.levels[n.NetworkLevel]--
		if r.levels[n.NetworkLevel] == 0 {
			delete(r.levels, n.NetworkLevel)
		}
	}
	n.NetworkLevel = level
	r.levels[level]++
}

// each visits the live nodes in registration order
func (r *Registry) each(fn func(n *Node)) {
	for _, addr := range r.order {
		fn(r.nodes[addr])
	}
}
