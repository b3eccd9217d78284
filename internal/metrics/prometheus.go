package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Singleton instance
	instance *PrometheusMetrics
	once     sync.Once
)

// PrometheusMetrics handles all metrics collection for the network simulator
type PrometheusMetrics struct {
	// Topology metrics
	NetworkNodesTotal  prometheus.Gauge
	InactiveNodesTotal prometheus.Gauge
	ClusterHeadsTotal  prometheus.Gauge
	NetworkLevelsTotal prometheus.Gauge
	BackupAssignments  prometheus.Gauge

	// Formation metrics
	BeaconsDelivered  prometheus.Counter
	JoinRequestsTotal prometheus.Counter
	ElectionsTotal    prometheus.Counter
	ElectionOutcomes  *prometheus.CounterVec

	// Aggregation metrics
	ReadingsTotal         *prometheus.CounterVec
	ReadingHops           prometheus.Histogram
	ActuatorTriggersTotal prometheus.Counter

	// Operation metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Collaborator errors
	PublishErrors *prometheus.CounterVec
	StorageErrors prometheus.Counter
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance
func NewPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		instance = &PrometheusMetrics{
			NetworkNodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wsn_nodes_total",
				Help: "The number of registered sensor nodes",
			}),
			InactiveNodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wsn_inactive_nodes_total",
				Help: "The number of registered nodes currently inactive",
			}),
			ClusterHeadsTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wsn_cluster_heads_total",
				Help: "The number of nodes acting as cluster head, sink included",
			}),
			NetworkLevelsTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wsn_network_levels_total",
				Help: "The number of distinct network levels assigned",
			}),
			BackupAssignments: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "wsn_backup_assignments",
				Help: "The number of nodes evaluated in the last backup identification",
			}),

			BeaconsDelivered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wsn_beacons_delivered_total",
				Help: "The total number of beacons delivered to neighbours",
			}),
			JoinRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wsn_join_requests_total",
				Help: "The total number of join requests queued at cluster heads",
			}),
			ElectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wsn_elections_total",
				Help: "The total number of elections that processed candidates",
			}),
			ElectionOutcomes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wsn_election_outcomes_total",
					Help: "The total number of election decisions by resulting node type",
				},
				[]string{"node_type"},
			),

			ReadingsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wsn_readings_total",
					Help: "The total number of injected sensor readings by delivery result",
				},
				[]string{"result"},
			),
			ReadingHops: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "wsn_reading_hops",
				Help:    "The number of hops a reading travelled",
				Buckets: prometheus.LinearBuckets(0, 1, 8),
			}),
			ActuatorTriggersTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wsn_actuator_triggers_total",
				Help: "The total number of actuators triggered",
			}),

			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "requests_total",
					Help: "The total number of processed requests",
				},
				[]string{"method", "endpoint", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "request_duration_seconds",
					Help:    "The request latencies in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),
			RequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "requests_in_flight",
				Help: "The number of requests currently being processed",
			}),

			PublishErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wsn_event_publish_errors_total",
					Help: "The total number of events that failed to publish",
				},
				[]string{"event_type"},
			),
			StorageErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "wsn_storage_errors_total",
				Help: "The total number of failed persistence operations",
			}),
		}
	})

	return instance
}

// GetMetrics returns the singleton PrometheusMetrics instance
func GetMetrics() *PrometheusMetrics {
	if instance == nil {
		return NewPrometheusMetrics()
	}
	return instance
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetTopology updates the node, inactive, cluster head and level gauges
func (pm *PrometheusMetrics) SetTopology(nodes, inactive, clusterHeads, levels int) {
	pm.NetworkNodesTotal.Set(float64(nodes))
	pm.InactiveNodesTotal.Set(float64(inactive))
	pm.ClusterHeadsTotal.Set(float64(clusterHeads))
	pm.NetworkLevelsTotal.Set(float64(levels))
}

// AddBeaconsDelivered counts delivered beacons
func (pm *PrometheusMetrics) AddBeaconsDelivered(n int) {
	pm.BeaconsDelivered.Add(float64(n))
}

// AddJoinRequests counts queued join requests
func (pm *PrometheusMetrics) AddJoinRequests(n int) {
	pm.JoinRequestsTotal.Add(float64(n))
}

// RecordElection records one election and its per-candidate outcomes
func (pm *PrometheusMetrics) RecordElection(clusterHeads, members int) {
	pm.ElectionsTotal.Inc()
	pm.ElectionOutcomes.WithLabelValues("ClusterHead").Add(float64(clusterHeads))
	pm.ElectionOutcomes.WithLabelValues("MemberNode").Add(float64(members))
}

// RecordReading records a reading's delivery result and hop count
func (pm *PrometheusMetrics) RecordReading(result string, hops int) {
	pm.ReadingsTotal.WithLabelValues(result).Inc()
	pm.ReadingHops.Observe(float64(hops))
}

// AddActuatorTriggers counts triggered actuators
func (pm *PrometheusMetrics) AddActuatorTriggers(n int) {
	pm.ActuatorTriggersTotal.Add(float64(n))
}

// SetBackupAssignments updates the backup assignment gauge
func (pm *PrometheusMetrics) SetBackupAssignments(n int) {
	pm.BackupAssignments.Set(float64(n))
}

// RecordRequest records a request with its method, endpoint, and status
func (pm *PrometheusMetrics) RecordRequest(method, endpoint, status string) {
	pm.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// ObserveRequestDuration records the duration of a request
func (pm *PrometheusMetrics) ObserveRequestDuration(method, endpoint string, duration float64) {
	pm.RequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// IncRequestsInFlight increments the number of requests in flight
func (pm *PrometheusMetrics) IncRequestsInFlight() {
	pm.RequestsInFlight.Inc()
}

// DecRequestsInFlight decrements the number of requests in flight
func (pm *PrometheusMetrics) DecRequestsInFlight() {
	pm.RequestsInFlight.Dec()
}

// RecordPublishError counts an event that failed to publish
func (pm *PrometheusMetrics) RecordPublishError(eventType string) {
	pm.PublishErrors.WithLabelValues(eventType).Inc()
}

// RecordStorageError counts a failed persistence operation
func (pm *PrometheusMetrics) RecordStorageError() {
	pm.StorageErrors.Inc()
}
