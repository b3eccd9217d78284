package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Singleton(t *testing.T) {
	metrics1 := GetMetrics()
	metrics2 := GetMetrics()

	assert.Same(t, metrics1, metrics2, "GetMetrics should return the same instance")
}

func TestPrometheusMetrics_Topology(t *testing.T) {
	m := GetMetrics()
	m.SetTopology(16, 1, 8, 4)

	assert.Equal(t, 16.0, testutil.ToFloat64(m.NetworkNodesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InactiveNodesTotal))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.ClusterHeadsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NetworkLevelsTotal))
}

func TestPrometheusMetrics_Election(t *testing.T) {
	m := GetMetrics()
	elections := testutil.ToFloat64(m.ElectionsTotal)
	heads := testutil.ToFloat64(m.ElectionOutcomes.WithLabelValues("ClusterHead"))
	members := testutil.ToFloat64(m.ElectionOutcomes.WithLabelValues("MemberNode"))

	m.RecordElection(2, 3)

	assert.Equal(t, elections+1, testutil.ToFloat64(m.ElectionsTotal))
	assert.Equal(t, heads+2, testutil.ToFloat64(m.ElectionOutcomes.WithLabelValues("ClusterHead")))
	assert.Equal(t, members+3, testutil.ToFloat64(m.ElectionOutcomes.WithLabelValues("MemberNode")))
}

func TestMetricsMiddleware(t *testing.T) {
	m := GetMetrics()
	before := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/nodes/{address}", "200"))

	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/api/v1/nodes/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	for _, path := range []string{"/api/v1/nodes/222001", "/api/v1/nodes/222002"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	after := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/v1/nodes/{address}", "200"))
	assert.Equal(t, before+2, after, "requests are labelled by route template")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight))
}

func TestHandler(t *testing.T) {
	GetMetrics().SetTopology(6, 0, 3, 2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wsn_nodes_total 6")
}
