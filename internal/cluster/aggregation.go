package cluster

import (
	"errors"

	"go.uber.org/zap"

	"github.com/arohanajit/WSN-Formation/internal/roles"
)

// Hop is one step a reading took on its way to the sink
type Hop struct {
	From     Address `json:"from"`
	To       Address `json:"to"`
	Rerouted bool    `json:"rerouted"`
}

// Delivery describes how far a sensor reading propagated
type Delivery struct {
	Origin      Address `json:"origin"`
	Reading     int64   `json:"reading"`
	Hops        []Hop   `json:"hops"`
	ReachedSink bool    `json:"reachedSink"`
}

// Path returns every node that recorded the reading, origin first
func (d Delivery) Path() []Address {
	path := []Address{d.Origin}
	for _, h := range d.Hops {
		path = append(path, h.To)
	}
	return path
}

// Rerouted reports whether any hop bypassed an inactive parent
func (d Delivery) Rerouted() bool {
	for _, h := range d.Hops {
		if h.Rerouted {
			return true
		}
	}
	return false
}

// ReadSensorInput records a reading at the given node and forwards it up the
// parent chain. An inactive parent is bypassed through a backup cluster head
// or, failing that, the next active ancestor. When no path remains the
// reading stays wherever it got to.
func (p *Protocol) ReadSensorInput(value int64, at Address) (Delivery, error) {
	origin, err := p.registry.node("read sensor input", at)
	if err != nil {
		return Delivery{}, err
	}

	delivery := Delivery{Origin: at, Reading: value, Hops: []Hop{}}
	record(origin, value)

	visited := map[Address]bool{at: true}
	current := origin
	for {
		if current.IsSink() {
			delivery.ReachedSink = true
			break
		}
		if !current.HasParent() {
			break
		}

		next, rerouted := p.nextHop(current, visited)
		if next == nil {
			p.logger.Warn("reading could not reach the sink",
				zap.Uint64("origin", uint64(at)),
				zap.Uint64("stranded_at", uint64(current.Address)),
				zap.Int64("reading", value))
			break
		}

		record(next, value)
		visited[next.Address] = true
		delivery.Hops = append(delivery.Hops, Hop{From: current.Address, To: next.Address, Rerouted: rerouted})
		current = next
	}

	if delivery.Rerouted() {
		p.logger.Info("reading rerouted around inactive cluster head",
			zap.Uint64("origin", uint64(at)),
			zap.Int64("reading", value),
			zap.Bool("reached_sink", delivery.ReachedSink))
	}
	return delivery, nil
}

// nextHop picks where a reading held by current goes next
func (p *Protocol) nextHop(current *Node, visited map[Address]bool) (*Node, bool) {
	parent, ok := p.registry.nodes[current.Parent]
	if !ok {
		return nil, false
	}
	if parent.IsActive {
		if visited[parent.Address] {
			return nil, false
		}
		return parent, false
	}

	if backup := p.backupFor(current, parent, visited); backup != nil {
		return backup, true
	}

	// No usable backup: climb past inactive ancestors.
	ancestor := parent
	for ancestor.HasParent() {
		next, ok := p.registry.nodes[ancestor.Parent]
		if !ok || visited[next.Address] {
			return nil, false
		}
		if next.IsActive {
			return next, true
		}
		visited[next.Address] = true
		ancestor = next
	}
	return nil, false
}

// backupFor returns the first active backup that sits above current,
// preferring current's own backups over those of its failed parent.
func (p *Protocol) backupFor(current, parent *Node, visited map[Address]bool) *Node {
	candidates := append([]Address{}, current.BackupClusterHeads...)
	for _, addr := range parent.BackupClusterHeads {
		if current.InRange(addr) {
			candidates = append(candidates, addr)
		}
	}

	for _, addr := range candidates {
		if visited[addr] || addr == parent.Address {
			continue
		}
		b, ok := p.registry.nodes[addr]
		if !ok || !b.IsActive || !b.HasLevel() {
			continue
		}
		if b.NetworkLevel >= current.NetworkLevel {
			continue
		}
		return b
	}
	return nil
}

func record(n *Node, value int64) {
	n.SensorReadings = append(n.SensorReadings, SensorReading{Reading: value, Exists: true})
}

// RoleStore is the role bookkeeping consulted when responding to readings
type RoleStore interface {
	Get(address uint64) (roles.Entry, error)
	MarkTriggering(address uint64) error
}

// Trigger is an actuator that fired in response to aggregated readings
type Trigger struct {
	Address Address     `json:"address"`
	Entry   roles.Entry `json:"entry"`
	Reading int64       `json:"reading"`
}

// RespondToSensorInput walks the subtree below at and marks every active
// actuator whose condition holds for a reading aggregated at at.
func (p *Protocol) RespondToSensorInput(at Address, store RoleStore) ([]Trigger, error) {
	root, err := p.registry.node("respond to sensor input", at)
	if err != nil {
		return nil, err
	}
	readings := root.Readings()

	triggers := make([]Trigger, 0)
	visited := map[Address]bool{at: true}
	queue := append([]Address{}, root.ChildNodes...)
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		if visited[addr] {
			continue
		}
		visited[addr] = true

		n, ok := p.registry.nodes[addr]
		if !ok {
			continue
		}
		queue = append(queue, n.ChildNodes...)
		if !n.IsActive {
			continue
		}

		entry, err := store.Get(uint64(addr))
		if errors.Is(err, roles.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if entry.Role != roles.RoleActuator {
			continue
		}

		reading, met := entry.Evaluate(readings)
		if !met {
			continue
		}
		if err := store.MarkTriggering(uint64(addr)); err != nil {
			return nil, err
		}
		entry.IsTriggering = true
		triggers = append(triggers, Trigger{Address: addr, Entry: entry, Reading: reading})
	}

	p.logger.Info("responded to sensor input",
		zap.Uint64("address", uint64(at)),
		zap.Int("readings", len(readings)),
		zap.Int("triggered", len(triggers)))
	return triggers, nil
}
