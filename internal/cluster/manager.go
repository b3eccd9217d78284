package cluster

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arohanajit/WSN-Formation/internal/events"
	"github.com/arohanajit/WSN-Formation/internal/metrics"
	"github.com/arohanajit/WSN-Formation/internal/roles"
	"github.com/arohanajit/WSN-Formation/internal/storage"
)

// NetworkManager interface defines the operations the service layer drives
type NetworkManager interface {
	AddNode(ctx context.Context, spec NodeSpec) (int, error)
	Seed(ctx context.Context, specs []NodeSpec) (int, error)
	GetNode(ctx context.Context, address Address) (*Node, error)
	GetNodeAt(ctx context.Context, index int) (*Node, error)
	ListNodes(ctx context.Context) ([]Address, error)
	Deactivate(ctx context.Context, address Address) error
	Activate(ctx context.Context, address Address) error

	RegisterAsClusterHead(ctx context.Context, level int, address Address) error
	SendBeacon(ctx context.Context, sender Address) (int, error)
	SendJoinRequests(ctx context.Context) ([]JoinRequest, error)
	ElectClusterHeads(ctx context.Context, head Address, probability int) (ElectionResult, error)
	IdentifyBackupClusterHeads(ctx context.Context) ([]BackupAssignment, error)

	ReadSensorInput(ctx context.Context, value int64, at Address) (Delivery, error)
	RespondToSensorInput(ctx context.Context, at Address) ([]Trigger, error)
	RankByEnergy(ctx context.Context) ([]*Node, error)
	Stats(ctx context.Context) (Stats, error)

	GetRole(ctx context.Context, address Address) (roles.Entry, error)
	AssignRole(ctx context.Context, address Address, assignment RoleAssignment) (roles.Entry, error)

	// Version changes whenever network or role state changes
	Version() uint64
}

// Stats summarises the current network
type Stats struct {
	Nodes         int    `json:"nodes"`
	Active        int    `json:"active"`
	Inactive      int    `json:"inactive"`
	LevelCount    int    `json:"levelCount"`
	Levels        []int  `json:"levels"`
	NodesPerLevel []int  `json:"nodesPerLevel"` // parallel to Levels
	ClusterHeads  int    `json:"clusterHeads"`
	Members       int    `json:"members"`
	Unassigned    int    `json:"unassigned"`
	ElectionRound uint64 `json:"electionRound"`
}

// RoleAssignment changes a node's role. Nil trigger fields keep the current value.
type RoleAssignment struct {
	Role             roles.Role       `json:"role"`
	TriggerMessage   string           `json:"triggerMessage"`
	TriggerThreshold *int64           `json:"triggerThreshold,omitempty"`
	TriggerCondition *roles.Condition `json:"triggerCondition,omitempty"`
}

// NetworkManagerImpl implements NetworkManager. Every operation runs under
// one lock; touched records are persisted and an event is published after
// each successful mutation.
type NetworkManagerImpl struct {
	mu        sync.RWMutex
	registry  *Registry
	protocol  *Protocol
	roles     *roles.Store
	store     storage.Store
	persister *Persister
	publisher events.Publisher
	metrics   *metrics.NetworkMetricsCollector
	logger    *zap.Logger
	seed      uint64
	version   uint64
}

// ManagerOption configures a NetworkManagerImpl
type ManagerOption func(*NetworkManagerImpl)

// WithStore persists network state in store and restores it on creation
func WithStore(store storage.Store) ManagerOption {
	return func(m *NetworkManagerImpl) {
		m.store = store
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) ManagerOption {
	return func(m *NetworkManagerImpl) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(c *metrics.NetworkMetricsCollector) ManagerOption {
	return func(m *NetworkManagerImpl) {
		if c != nil {
			m.metrics = c
		}
	}
}

// WithManagerLogger sets the manager logger
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *NetworkManagerImpl) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSeed sets the election seed
func WithSeed(seed uint64) ManagerOption {
	return func(m *NetworkManagerImpl) {
		m.seed = seed
	}
}

// NewNetworkManager creates a NetworkManagerImpl, restoring any state found
// in the configured store
func NewNetworkManager(opts ...ManagerOption) (*NetworkManagerImpl, error) {
	m := &NetworkManagerImpl{
		registry:  NewRegistry(),
		roles:     roles.NewStore(),
		publisher: events.NopPublisher{},
		logger:    zap.NewNop(),
		seed:      DefaultElectionSeed,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewNetworkMetricsCollector()
	}
	m.protocol = NewProtocol(m.registry,
		WithElectionSeed(m.seed),
		WithLogger(m.logger.Named("protocol")))

	if m.store != nil {
		m.persister = NewPersister(m.store)
		if err := m.restore(); err != nil {
			return nil, err
		}
	}
	m.updateTopology()
	return m, nil
}

func (m *NetworkManagerImpl) restore() error {
	snap, err := m.persister.Load()
	if err != nil {
		return fmt.Errorf("restore network state: %w", err)
	}
	if err := m.registry.Restore(snap.Nodes); err != nil {
		return fmt.Errorf("restore network state: %w", err)
	}
	m.roles.Restore(snap.Roles)
	m.protocol.SetElectionRound(snap.ElectionRound)

	if len(snap.Nodes) > 0 {
		m.logger.Info("Restored network state",
			zap.Int("nodes", len(snap.Nodes)),
			zap.Int("roles", len(snap.Roles)),
			zap.Uint64("election_round", snap.ElectionRound))
	}
	return nil
}

// Version returns a counter bumped by every mutation
func (m *NetworkManagerImpl) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.version
}

// AddNode registers a node and gives it a Default role entry
func (m *NetworkManagerImpl) AddNode(ctx context.Context, spec NodeSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.addNodeLocked(ctx, spec)
}

func (m *NetworkManagerImpl) addNodeLocked(ctx context.Context, spec NodeSpec) (int, error) {
	index, err := m.registry.AddNode(spec.Address, spec.EnergyLevel, spec.WithinRange)
	if err != nil {
		return 0, err
	}
	m.roles.Ensure(uint64(spec.Address))

	m.persistNodes(spec.Address)
	m.persistOrder()
	m.persistRoles(uint64(spec.Address))
	m.changed()

	m.logger.Info("Node added",
		zap.Uint64("address", uint64(spec.Address)),
		zap.Uint64("energy", spec.EnergyLevel),
		zap.Int("index", index))
	m.publish(ctx, events.NodeAdded, spec.Address, spec)
	return index, nil
}

// Seed registers a batch of nodes in order, stopping at the first failure.
// It returns the number of nodes added.
func (m *NetworkManagerImpl) Seed(ctx context.Context, specs []NodeSpec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, spec := range specs {
		if _, err := m.addNodeLocked(ctx, spec); err != nil {
			return i, err
		}
	}
	return len(specs), nil
}

// GetNode returns a copy of a node
func (m *NetworkManagerImpl) GetNode(ctx context.Context, address Address) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry.GetNode(address)
}

// GetNodeAt returns a copy of the node at a registration index
func (m *NetworkManagerImpl) GetNodeAt(ctx context.Context, index int) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry.GetNodeAt(index)
}

// ListNodes returns every address in registration order
func (m *NetworkManagerImpl) ListNodes(ctx context.Context) ([]Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.registry.Addresses(), nil
}

// Deactivate simulates a node failure
func (m *NetworkManagerImpl) Deactivate(ctx context.Context, address Address) error {
	return m.setActive(ctx, address, false)
}

// Activate brings a failed node back
func (m *NetworkManagerImpl) Activate(ctx context.Context, address Address) error {
	return m.setActive(ctx, address, true)
}

func (m *NetworkManagerImpl) setActive(ctx context.Context, address Address, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	eventType := events.NodeActivated
	if active {
		err = m.registry.Activate(address)
	} else {
		err = m.registry.Deactivate(address)
		eventType = events.NodeDeactivated
	}
	if err != nil {
		return err
	}

	m.persistNodes(address)
	m.changed()
	m.logger.Info("Node state changed",
		zap.Uint64("address", uint64(address)),
		zap.Bool("active", active))
	m.publish(ctx, eventType, address, nil)
	return nil
}

// RegisterAsClusterHead bootstraps a cluster head and makes it a controller
func (m *NetworkManagerImpl) RegisterAsClusterHead(ctx context.Context, level int, address Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.protocol.RegisterAsClusterHead(level, address); err != nil {
		return err
	}
	m.roles.AssignAsController(uint64(address))

	m.persistNodes(address)
	m.persistRoles(uint64(address))
	m.changed()
	m.publish(ctx, events.ClusterHeadRegistered, address, map[string]int{"level": level})
	return nil
}

// SendBeacon broadcasts sender's level to its neighbours
func (m *NetworkManagerImpl) SendBeacon(ctx context.Context, sender Address) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delivered, err := m.protocol.SendBeacon(sender)
	if err != nil {
		return 0, err
	}

	touched := []Address{sender}
	if n, ok := m.registry.nodes[sender]; ok {
		touched = append(touched, n.WithinRangeNodes...)
	}
	m.persistNodes(touched...)
	m.metrics.RecordBeacon(delivered)
	m.changed()
	m.publish(ctx, events.BeaconSent, sender, map[string]int{"delivered": delivered})
	return delivered, nil
}

// SendJoinRequests runs one join request round
func (m *NetworkManagerImpl) SendJoinRequests(ctx context.Context) ([]JoinRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	requests := m.protocol.SendJoinRequests()

	heads := make([]Address, 0)
	for _, r := range requests {
		if !containsAddress(heads, r.To) {
			heads = append(heads, r.To)
		}
	}
	m.persistNodes(heads...)
	m.metrics.RecordJoinRequests(len(requests))
	if len(requests) > 0 {
		m.changed()
	}
	m.publish(ctx, events.JoinRequestsSent, NoAddress, requests)
	return requests, nil
}

// ElectClusterHeads elects among head's pending join requests. New cluster
// heads become controllers.
func (m *NetworkManagerImpl) ElectClusterHeads(ctx context.Context, head Address, probability int) (ElectionResult, error) {
	if err := ctx.Err(); err != nil {
		return ElectionResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.protocol.ElectClusterHeads(head, probability)
	if err != nil {
		return ElectionResult{}, err
	}
	if len(result.Outcomes) == 0 {
		return result, nil
	}

	touched := []Address{head}
	controllers := make([]uint64, 0)
	for _, o := range result.Outcomes {
		touched = append(touched, o.Address)
		if o.NodeType == NodeTypeClusterHead {
			m.roles.AssignAsController(uint64(o.Address))
			controllers = append(controllers, uint64(o.Address))
		}
	}
	m.persistNodes(touched...)
	m.persistRoles(controllers...)
	m.persistElectionRound()

	m.metrics.RecordElection(len(result.ClusterHeads()), len(result.Members()))
	m.changed()
	m.publish(ctx, events.ClusterHeadsElected, head, result)
	return result, nil
}

// IdentifyBackupClusterHeads recomputes backup parents network-wide
func (m *NetworkManagerImpl) IdentifyBackupClusterHeads(ctx context.Context) ([]BackupAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	assignments := m.protocol.IdentifyBackupClusterHeads()

	touched := make([]Address, 0, len(assignments))
	for _, a := range assignments {
		touched = append(touched, a.Address)
	}
	m.persistNodes(touched...)
	m.metrics.SetBackupAssignments(len(assignments))
	m.changed()
	m.publish(ctx, events.BackupsIdentified, NoAddress, assignments)
	return assignments, nil
}

// ReadSensorInput injects a reading and aggregates it towards the sink
func (m *NetworkManagerImpl) ReadSensorInput(ctx context.Context, value int64, at Address) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delivery, err := m.protocol.ReadSensorInput(value, at)
	if err != nil {
		return Delivery{}, err
	}

	m.persistReadings(delivery.Path()...)
	m.metrics.RecordDelivery(len(delivery.Hops), delivery.Rerouted(), delivery.ReachedSink)
	m.changed()
	m.publish(ctx, events.ReadingAggregated, at, delivery)
	return delivery, nil
}

// triggerEvent is the payload of an actuator trigger event
type triggerEvent struct {
	Origin    Address         `json:"origin"`
	Message   string          `json:"message"`
	Reading   int64           `json:"reading"`
	Threshold int64           `json:"threshold"`
	Condition roles.Condition `json:"condition"`
}

// RespondToSensorInput triggers matching actuators below at
func (m *NetworkManagerImpl) RespondToSensorInput(ctx context.Context, at Address) ([]Trigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	triggers, err := m.protocol.RespondToSensorInput(at, m.roles)
	if err != nil {
		return nil, err
	}

	addrs := make([]uint64, 0, len(triggers))
	for _, t := range triggers {
		addrs = append(addrs, uint64(t.Address))
	}
	m.persistRoles(addrs...)
	m.metrics.RecordTriggers(len(triggers))
	if len(triggers) > 0 {
		m.changed()
	}

	for _, t := range triggers {
		m.logger.Info("Actuator triggered",
			zap.Uint64("actuator", uint64(t.Address)),
			zap.Uint64("origin", uint64(at)),
			zap.Int64("reading", t.Reading),
			zap.String("message", t.Entry.TriggerMessage))
		m.publish(ctx, events.ActuatorTriggered, t.Address, triggerEvent{
			Origin:    at,
			Message:   t.Entry.TriggerMessage,
			Reading:   t.Reading,
			Threshold: t.Entry.TriggerThreshold,
			Condition: t.Entry.TriggerCondition,
		})
	}
	return triggers, nil
}

// RankByEnergy returns every node ordered by remaining energy, highest first
func (m *NetworkManagerImpl) RankByEnergy(ctx context.Context) ([]*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return RankByEnergyDescending(m.registry.Nodes()), nil
}

// Stats summarises the network
func (m *NetworkManagerImpl) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.statsLocked(), nil
}

func (m *NetworkManagerImpl) statsLocked() Stats {
	s := Stats{
		Nodes:         m.registry.Count(),
		LevelCount:    m.registry.LevelCount(),
		Levels:        m.registry.Levels(),
		ElectionRound: m.protocol.ElectionRound(),
	}
	s.NodesPerLevel = make([]int, len(s.Levels))
	for i, level := range s.Levels {
		s.NodesPerLevel[i] = len(m.registry.NodesAtLevel(level))
	}
	m.registry.each(func(n *Node) {
		if n.IsActive {
			s.Active++
		} else {
			s.Inactive++
		}
		switch n.NodeType {
		case NodeTypeClusterHead:
			s.ClusterHeads++
		case NodeTypeMemberNode:
			s.Members++
		default:
			s.Unassigned++
		}
	})
	return s
}

// GetRole returns the role entry of a node
func (m *NetworkManagerImpl) GetRole(ctx context.Context, address Address) (roles.Entry, error) {
	if err := ctx.Err(); err != nil {
		return roles.Entry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.registry.Has(address) {
		return roles.Entry{}, nodeErr("get role", address, ErrNodeNotFound)
	}
	return m.roles.Get(uint64(address))
}

// AssignRole changes the role and, optionally, the trigger of a node
func (m *NetworkManagerImpl) AssignRole(ctx context.Context, address Address, a RoleAssignment) (roles.Entry, error) {
	if err := ctx.Err(); err != nil {
		return roles.Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.Has(address) {
		return roles.Entry{}, nodeErr("assign role", address, ErrNodeNotFound)
	}
	if err := m.roles.Assign(uint64(address), a.Role, a.TriggerMessage); err != nil {
		return roles.Entry{}, err
	}

	if a.TriggerThreshold != nil || a.TriggerCondition != nil {
		current, err := m.roles.Get(uint64(address))
		if err != nil {
			return roles.Entry{}, err
		}
		threshold, condition := current.TriggerThreshold, current.TriggerCondition
		if a.TriggerThreshold != nil {
			threshold = *a.TriggerThreshold
		}
		if a.TriggerCondition != nil {
			condition = *a.TriggerCondition
		}
		if err := m.roles.SetTrigger(uint64(address), threshold, condition); err != nil {
			return roles.Entry{}, err
		}
	}

	entry, err := m.roles.Get(uint64(address))
	if err != nil {
		return roles.Entry{}, err
	}
	m.persistRoles(uint64(address))
	m.changed()
	m.publish(ctx, events.RoleAssigned, address, entry)
	return entry, nil
}

// Flush writes the complete network state to the store
func (m *NetworkManagerImpl) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.persister == nil {
		return nil
	}
	if err := m.persister.SaveNodes(m.registry.Nodes()...); err != nil {
		return err
	}
	if err := m.persister.SaveOrder(m.registry.Addresses()); err != nil {
		return err
	}
	if err := m.persister.SaveRoles(m.roles.All()...); err != nil {
		return err
	}
	if err := m.persister.SaveElectionRound(m.protocol.ElectionRound()); err != nil {
		return err
	}
	return m.persister.CompactReadings()
}

// changed bumps the version and refreshes the topology gauges
func (m *NetworkManagerImpl) changed() {
	m.version++
	m.updateTopology()
}

func (m *NetworkManagerImpl) updateTopology() {
	s := m.statsLocked()
	m.metrics.UpdateTopology(metrics.TopologySnapshot{
		Nodes:        s.Nodes,
		Inactive:     s.Inactive,
		ClusterHeads: s.ClusterHeads,
		Levels:       s.LevelCount,
	})
}

// Persistence failures are logged and counted but never fail an operation:
// the in-memory network has already changed.

func (m *NetworkManagerImpl) persistNodes(addrs ...Address) {
	if m.persister == nil {
		return
	}
	nodes := make([]*Node, 0, len(addrs))
	for _, addr := range addrs {
		if n, ok := m.registry.nodes[addr]; ok {
			nodes = append(nodes, n)
		}
	}
	if err := m.persister.SaveNodes(nodes...); err != nil {
		m.storageFailed(err)
	}
}

// persistReadings appends the latest reading of each node in addrs
func (m *NetworkManagerImpl) persistReadings(addrs ...Address) {
	if m.persister == nil {
		return
	}
	for _, addr := range addrs {
		n, ok := m.registry.nodes[addr]
		if !ok {
			continue
		}
		last := len(n.SensorReadings) - 1
		if err := m.persister.AppendReading(addr, last, n.SensorReadings[last]); err != nil {
			m.storageFailed(err)
			return
		}
	}
}

func (m *NetworkManagerImpl) persistOrder() {
	if m.persister == nil {
		return
	}
	if err := m.persister.SaveOrder(m.registry.Addresses()); err != nil {
		m.storageFailed(err)
	}
}

func (m *NetworkManagerImpl) persistRoles(addrs ...uint64) {
	if m.persister == nil {
		return
	}
	entries := make([]roles.Entry, 0, len(addrs))
	for _, addr := range addrs {
		if e, err := m.roles.Get(addr); err == nil {
			entries = append(entries, e)
		}
	}
	if err := m.persister.SaveRoles(entries...); err != nil {
		m.storageFailed(err)
	}
}

func (m *NetworkManagerImpl) persistElectionRound() {
	if m.persister == nil {
		return
	}
	if err := m.persister.SaveElectionRound(m.protocol.ElectionRound()); err != nil {
		m.storageFailed(err)
	}
}

func (m *NetworkManagerImpl) storageFailed(err error) {
	m.metrics.RecordStorageError()
	m.logger.Error("Failed to persist network state", zap.Error(err))
}

// publish emits an event; failures are logged and counted only
func (m *NetworkManagerImpl) publish(ctx context.Context, t events.Type, address Address, data interface{}) {
	e, err := events.New(t, uint64(address), data)
	if err != nil {
		m.logger.Error("Failed to build event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.metrics.RecordPublishError(string(t))
		m.logger.Warn("Failed to publish event",
			zap.String("type", string(t)),
			zap.String("event_id", e.ID),
			zap.Error(err))
	}
}
