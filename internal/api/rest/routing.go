package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/config"
	"github.com/arohanajit/WSN-Formation/internal/metrics"
)

// APIPrefix is the path prefix of the simulation routes
const APIPrefix = "/api/v1"

// NewRouter wires the simulation API, health check and metrics endpoint
func NewRouter(manager cluster.NetworkManager, cfg *config.ServerConfig, logger *zap.Logger) (*mux.Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler, err := NewNetworkHandler(manager, cfg.ViewCacheSize, cfg.DefaultCHProbability, logger)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(LoggingMiddleware(logger))
	router.Use(metrics.MetricsMiddleware)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", handler.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix(APIPrefix).Subrouter()
	if cfg.RateLimit > 0 {
		v1.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
	}
	v1.Use(MaxPayloadMiddleware(cfg.MaxPayloadSize))
	v1.Use(TimeoutMiddleware(cfg.RequestTimeout))
	handler.RegisterRoutes(v1)

	return router, nil
}
