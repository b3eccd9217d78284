// Package events publishes protocol activity (beacons, elections, readings,
// actuator triggers) to external observers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names a kind of protocol event
type Type string

const (
	NodeAdded             Type = "node.added"
	NodeDeactivated       Type = "node.deactivated"
	NodeActivated         Type = "node.activated"
	ClusterHeadRegistered Type = "clusterhead.registered"
	BeaconSent            Type = "beacon.sent"
	JoinRequestsSent      Type = "join.requested"
	ClusterHeadsElected   Type = "election.completed"
	BackupsIdentified     Type = "backup.identified"
	ReadingAggregated     Type = "reading.aggregated"
	ActuatorTriggered     Type = "actuator.triggered"
	RoleAssigned          Type = "role.assigned"
)

// Event is a single published protocol event
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Address   uint64          `json:"address,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an event carrying data encoded as JSON
func New(t Type, address uint64, data interface{}) (Event, error) {
	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Address:   address,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		e.Data = raw
	}
	return e, nil
}

// Publisher delivers events to an external system
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// MultiPublisher fans events out to several publishers. Every publisher is
// attempted; the errors are joined.
type MultiPublisher struct {
	publishers []Publisher
	logger     *zap.Logger
}

// NewMultiPublisher combines publishers, skipping nil entries
func NewMultiPublisher(logger *zap.Logger, publishers ...Publisher) *MultiPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiPublisher{logger: logger}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Len returns the number of wrapped publishers
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

func (m *MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, e); err != nil {
			m.logger.Warn("Failed to publish event",
				zap.String("event_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{events: make([]Event, 0)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

// Events returns a copy of the recorded events in publish order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event{}, r.events...)
}

// OfType returns the recorded events of type t
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0)
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Closed reports whether Close was called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}
