package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arohanajit/WSN-Formation/internal/api/rest"
	"github.com/arohanajit/WSN-Formation/internal/cluster"
	"github.com/arohanajit/WSN-Formation/internal/config"
	"github.com/arohanajit/WSN-Formation/internal/events"
	"github.com/arohanajit/WSN-Formation/internal/metrics"
	"github.com/arohanajit/WSN-Formation/internal/storage"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	if err := config.InitLogger(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer config.Sync()
	logger := config.GetLogger()

	// Initialize storage
	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}

	// Initialize event publishers
	publisher := openPublishers(cfg, logger)

	// Initialize network manager, restoring any persisted network
	manager, err := cluster.NewNetworkManager(
		cluster.WithStore(store),
		cluster.WithPublisher(publisher),
		cluster.WithMetricsCollector(metrics.NewNetworkMetricsCollector()),
		cluster.WithManagerLogger(config.Named("network")),
		cluster.WithSeed(cfg.ElectionSeed),
	)
	if err != nil {
		logger.Fatal("Failed to initialize network manager", zap.Error(err))
	}

	// Initialize API handlers
	router, err := rest.NewRouter(manager, cfg, config.Named("http"))
	if err != nil {
		logger.Fatal("Failed to initialize router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	shutdownMgr := cluster.NewShutdownManager(
		manager,
		server,
		publisher,
		store,
		config.Named("shutdown"),
		cfg.ShutdownTimeout,
	)

	// Setup signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("address", cfg.Addr()),
		zap.Uint64("election_seed", cfg.ElectionSeed),
		zap.Bool("persistent", cfg.StoragePath != ""))

	// Wait for interrupt signal
	sig := <-signalCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := shutdownMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server shutdown completed")
}

// openStore opens badger at the configured path, or keeps records in memory
func openStore(cfg *config.ServerConfig, logger *zap.Logger) (storage.Store, error) {
	if cfg.StoragePath == "" {
		logger.Info("No storage path configured, network state is kept in memory")
		return storage.NewMemoryStore(), nil
	}
	logger.Info("Opening badger store", zap.String("path", cfg.StoragePath))
	return storage.NewBadgerStore(cfg.StoragePath, config.Named("badger"))
}

// openPublishers connects the configured event sinks. A sink that cannot be
// reached is logged and skipped so the simulation still runs.
func openPublishers(cfg *config.ServerConfig, logger *zap.Logger) events.Publisher {
	var publishers []events.Publisher

	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, config.Named("nats"))
		if err != nil {
			logger.Error("Failed to connect to NATS, protocol events disabled",
				zap.String("url", cfg.NATSURL), zap.Error(err))
		} else {
			publishers = append(publishers, p)
		}
	}

	if cfg.MQTTBroker != "" {
		p, err := events.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopicPrefix, config.Named("mqtt"))
		if err != nil {
			logger.Error("Failed to connect to MQTT broker, actuator commands disabled",
				zap.String("broker", cfg.MQTTBroker), zap.Error(err))
		} else {
			publishers = append(publishers, p)
		}
	}

	return events.NewMultiPublisher(config.Named("events"), publishers...)
}
