package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arohanajit/WSN-Formation/internal/roles"
	"github.com/arohanajit/WSN-Formation/internal/storage"
)

const (
	nodeKeyPrefix    = "node/"
	roleKeyPrefix    = "role/"
	readingKeyPrefix = "reading/"
	orderKey         = "meta/order"
	electionRndKey   = "meta/election-round"
)

// Snapshot is the persisted state of a simulated network
type Snapshot struct {
	Nodes         []*Node
	Roles         []roles.Entry
	ElectionRound uint64
}

// Persister stores node records, role entries and the election counter in
// a key-value store. Nodes are kept one record per address so a mutation
// only rewrites the nodes it touched. Sensor readings are appended under
// their own keys and folded back into the node records on Load.
type Persister struct {
	store storage.Store
}

// NewPersister creates a Persister on top of store
func NewPersister(store storage.Store) *Persister {
	return &Persister{store: store}
}

func nodeKey(addr Address) string {
	return nodeKeyPrefix + strconv.FormatUint(uint64(addr), 10)
}

func roleKey(addr uint64) string {
	return roleKeyPrefix + strconv.FormatUint(addr, 10)
}

func readingPrefix(addr Address) string {
	return readingKeyPrefix + strconv.FormatUint(uint64(addr), 10) + "/"
}

// readingKey is zero padded so keys sort in log order
func readingKey(addr Address, index int) string {
	return fmt.Sprintf("%s%010d", readingPrefix(addr), index)
}

// SaveNodes writes the given node records
func (p *Persister) SaveNodes(nodes ...*Node) error {
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode node %d: %w", n.Address, err)
		}
		if err := p.store.Put(nodeKey(n.Address), data); err != nil {
			return fmt.Errorf("save node %d: %w", n.Address, err)
		}
	}
	return nil
}

// SaveOrder writes the registration order
func (p *Persister) SaveOrder(order []Address) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.store.Put(orderKey, data)
}

// SaveRoles writes the given role entries
func (p *Persister) SaveRoles(entries ...roles.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode role %d: %w", e.Address, err)
		}
		if err := p.store.Put(roleKey(e.Address), data); err != nil {
			return fmt.Errorf("save role %d: %w", e.Address, err)
		}
	}
	return nil
}

// AppendReading records the reading stored at position index of a node's
// reading log without rewriting the node record
func (p *Persister) AppendReading(addr Address, index int, r SensorReading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading of node %d: %w", addr, err)
	}
	if err := p.store.Put(readingKey(addr, index), data); err != nil {
		return fmt.Errorf("save reading of node %d: %w", addr, err)
	}
	return nil
}

// CompactReadings drops appended readings. Call it only after every node
// record has been rewritten with its full reading log.
func (p *Persister) CompactReadings() error {
	keys, err := p.store.Keys(readingKeyPrefix)
	if err != nil {
		return fmt.Errorf("list readings: %w", err)
	}
	for _, k := range keys {
		if err := p.store.Delete(k); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// SaveElectionRound writes the election counter
func (p *Persister) SaveElectionRound(round uint64) error {
	return p.store.Put(electionRndKey, []byte(strconv.FormatUint(round, 10)))
}

// Load reads a snapshot back. An empty store yields an empty snapshot.
func (p *Persister) Load() (Snapshot, error) {
	var snap Snapshot

	order := make([]Address, 0)
	data, err := p.store.Get(orderKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
	case err != nil:
		return snap, fmt.Errorf("load node order: %w", err)
	default:
		if err := json.Unmarshal(data, &order); err != nil {
			return snap, fmt.Errorf("decode node order: %w", err)
		}
	}

	snap.Nodes = make([]*Node, 0, len(order))
	for _, addr := range order {
		data, err := p.store.Get(nodeKey(addr))
		if err != nil {
			return snap, fmt.Errorf("load node %d: %w", addr, err)
		}
		n := &Node{}
		if err := json.Unmarshal(data, n); err != nil {
			return snap, fmt.Errorf("decode node %d: %w", addr, err)
		}
		if err := p.loadReadings(n); err != nil {
			return snap, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}

	keys, err := p.store.Keys(roleKeyPrefix)
	if err != nil {
		return snap, fmt.Errorf("list roles: %w", err)
	}
	snap.Roles = make([]roles.Entry, 0, len(keys))
	for _, k := range keys {
		data, err := p.store.Get(k)
		if err != nil {
			return snap, fmt.Errorf("load %s: %w", k, err)
		}
		var e roles.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return snap, fmt.Errorf("decode %s: %w", k, err)
		}
		snap.Roles = append(snap.Roles, e)
	}

	data, err = p.store.Get(electionRndKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
	case err != nil:
		return snap, fmt.Errorf("load election round: %w", err)
	default:
		round, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return snap, fmt.Errorf("decode election round: %w", err)
		}
		snap.ElectionRound = round
	}

	return snap, nil
}

// loadReadings appends the readings recorded after n's record was written
func (p *Persister) loadReadings(n *Node) error {
	keys, err := p.store.Keys(readingPrefix(n.Address))
	if err != nil {
		return fmt.Errorf("list readings of node %d: %w", n.Address, err)
	}
	if len(n.SensorReadings) == 0 {
		n.SensorReadings = []SensorReading{{}}
	}
	for _, k := range keys {
		index, err := strconv.Atoi(strings.TrimPrefix(k, readingPrefix(n.Address)))
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		switch {
		case index < len(n.SensorReadings):
			continue
		case index > len(n.SensorReadings):
			return fmt.Errorf("load readings of node %d: reading %d missing", n.Address, len(n.SensorReadings))
		}

		data, err := p.store.Get(k)
		if err != nil {
			return fmt.Errorf("load %s: %w", k, err)
		}
		var r SensorReading
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		n.SensorReadings = append(n.SensorReadings, r)
	}
	return nil
}
