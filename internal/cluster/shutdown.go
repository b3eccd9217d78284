package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arohanajit/WSN-Formation/internal/events"
	"github.com/arohanajit/WSN-Formation/internal/storage"
)

// ErrShutdownInProgress is returned when Shutdown is called twice
var ErrShutdownInProgress = errors.New("shutdown already in progress")

// ShutdownManager handles the graceful shutdown sequence of the service
type ShutdownManager struct {
	manager        *NetworkManagerImpl
	server         *http.Server
	publisher      events.Publisher
	store          storage.Store
	logger         *zap.Logger
	timeout        time.Duration
	mu             sync.Mutex
	isShuttingDown bool
}

// NewShutdownManager creates a new ShutdownManager instance.
// Any collaborator may be nil.
func NewShutdownManager(
	manager *NetworkManagerImpl,
	server *http.Server,
	publisher events.Publisher,
	store storage.Store,
	logger *zap.Logger,
	timeout time.Duration,
) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ShutdownManager{
		manager:   manager,
		server:    server,
		publisher: publisher,
		store:     store,
		logger:    logger,
		timeout:   timeout,
	}
}

// Shutdown stops the HTTP server, writes the full network state, drains
// event publishers and closes the store, in that order
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	if sm.isShuttingDown {
		sm.mu.Unlock()
		return ErrShutdownInProgress
	}
	sm.isShuttingDown = true
	sm.mu.Unlock()

	sm.logger.Info("Starting graceful shutdown sequence")

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error

	// Step 1: Stop accepting new requests and let in-flight ones finish
	if sm.server != nil {
		sm.logger.Info("Stopping HTTP server - no longer accepting new requests")
		if err := sm.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sm.logger.Error("Error shutting down HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	// Step 2: Persist the complete network state. Flush takes the manager
	// lock, so it also waits for any operation still running.
	flushPending := false
	if sm.manager != nil {
		sm.logger.Info("Persisting network state")
		if err := sm.runWithContext(ctx, sm.manager.Flush); err != nil {
			sm.logger.Error("Error persisting network state", zap.Error(err))
			errs = append(errs, fmt.Errorf("flush network state: %w", err))
			flushPending = errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
		}
	}

	// Step 3: Drain event publishers
	if sm.publisher != nil {
		sm.logger.Info("Draining event publishers")
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Error closing event publishers", zap.Error(err))
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
	}

	// Step 4: Close the store, unless a flush that timed out may still write to it
	if sm.store != nil && flushPending {
		sm.logger.Warn("Leaving store open, network state flush still running")
	} else if sm.store != nil {
		sm.logger.Info("Closing store")
		if err := sm.store.Close(); err != nil {
			sm.logger.Error("Error closing store", zap.Error(err))
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown completed successfully")
	return nil
}

// runWithContext runs fn, giving up when ctx expires first
func (sm *ShutdownManager) runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		sm.logger.Warn("Graceful shutdown timed out, forcing exit")
		return ctx.Err()
	}
}
