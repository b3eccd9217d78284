package metrics

import (
	"sync"
)

// Delivery results used as the readings_total label
const (
	ResultDelivered = "delivered"
	ResultRerouted  = "rerouted"
	ResultStranded  = "stranded"
)

// TopologySnapshot is the last topology reported to the collector
type TopologySnapshot struct {
	Nodes        int `json:"nodes"`
	Inactive     int `json:"inactive"`
	ClusterHeads int `json:"clusterHeads"`
	Levels       int `json:"levels"`
}

// NetworkMetricsCollector provides methods to collect metrics related to
// network formation and aggregation
type NetworkMetricsCollector struct {
	metrics       *PrometheusMetrics
	topologyMutex sync.RWMutex
	topology      TopologySnapshot
	countersMutex sync.RWMutex
	readings      map[string]int
	triggers      int
}

// NewNetworkMetricsCollector creates a new NetworkMetricsCollector
func NewNetworkMetricsCollector() *NetworkMetricsCollector {
	collector := &NetworkMetricsCollector{
		metrics:  GetMetrics(),
		readings: make(map[string]int),
	}
	collector.metrics.SetTopology(0, 0, 0, 0)
	return collector
}

// Topology returns the last reported topology
func (c *NetworkMetricsCollector) Topology() TopologySnapshot {
	c.topologyMutex.RLock()
	defer c.topologyMutex.RUnlock()

	return c.topology
}

// UpdateTopology reports the current shape of the network
func (c *NetworkMetricsCollector) UpdateTopology(t TopologySnapshot) {
	c.topologyMutex.Lock()
	defer c.topologyMutex.Unlock()

	c.topology = t
	c.metrics.SetTopology(t.Nodes, t.Inactive, t.ClusterHeads, t.Levels)
}

// RecordBeacon counts the beacons one SendBeacon delivered
func (c *NetworkMetricsCollector) RecordBeacon(delivered int) {
	c.metrics.AddBeaconsDelivered(delivered)
}

// RecordJoinRequests counts queued join requests
func (c *NetworkMetricsCollector) RecordJoinRequests(n int) {
	c.metrics.AddJoinRequests(n)
}

// RecordElection records an election that processed candidates
func (c *NetworkMetricsCollector) RecordElection(clusterHeads, members int) {
	if clusterHeads+members == 0 {
		return
	}
	c.metrics.RecordElection(clusterHeads, members)
}

// RecordDelivery records how a reading propagated
func (c *NetworkMetricsCollector) RecordDelivery(hops int, rerouted, reachedSink bool) {
	result := ResultDelivered
	switch {
	case !reachedSink:
		result = ResultStranded
	case rerouted:
		result = ResultRerouted
	}

	c.countersMutex.Lock()
	c.readings[result]++
	c.countersMutex.Unlock()

	c.metrics.RecordReading(result, hops)
}

// Readings returns the number of recorded readings with the given result
func (c *NetworkMetricsCollector) Readings(result string) int {
	c.countersMutex.RLock()
	defer c.countersMutex.RUnlock()

	return c.readings[result]
}

// RecordTriggers counts triggered actuators
func (c *NetworkMetricsCollector) RecordTriggers(n int) {
	c.countersMutex.Lock()
	c.triggers += n
	c.countersMutex.Unlock()

	c.metrics.AddActuatorTriggers(n)
}

// Triggers returns the number of actuator triggers recorded
func (c *NetworkMetricsCollector) Triggers() int {
	c.countersMutex.RLock()
	defer c.countersMutex.RUnlock()

	return c.triggers
}

// SetBackupAssignments reports the outcome of the last backup identification
func (c *NetworkMetricsCollector) SetBackupAssignments(n int) {
	c.metrics.SetBackupAssignments(n)
}

// RecordPublishError counts an event that failed to publish
func (c *NetworkMetricsCollector) RecordPublishError(eventType string) {
	c.metrics.RecordPublishError(eventType)
}

// RecordStorageError counts a failed persistence operation
func (c *NetworkMetricsCollector) RecordStorageError() {
	c.metrics.RecordStorageError()
}
