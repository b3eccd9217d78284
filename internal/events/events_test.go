package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNATS struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

// fakeToken completes immediately unless pending is set
type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Done() <-chan struct{} {
	if t.pending {
		return nil
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	topics       []string
	payloads     [][]byte
	token        *fakeToken
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	if f.token == nil {
		return &fakeToken{}
	}
	return f.token
}

func (f *fakeMQTT) Disconnect(uint) {
	f.disconnected = true
}

func TestNew(t *testing.T) {
	e, err := New(BeaconSent, 111000, map[string]int{"delivered": 5})
	require.NoError(t, err)

	_, err = uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, BeaconSent, e.Type)
	assert.Equal(t, uint64(111000), e.Address)
	assert.JSONEq(t, `{"delivered":5}`, string(e.Data))
	assert.False(t, e.Timestamp.IsZero())

	other, err := New(BeaconSent, 111000, nil)
	require.NoError(t, err)
	assert.NotEqual(t, e.ID, other.ID)
	assert.Nil(t, other.Data)

	_, err = New(BeaconSent, 1, make(chan int))
	assert.Error(t, err)
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeNATS{}
	p := newNATSPublisher(conn, "", nil)

	e, err := New(ClusterHeadsElected, 111000, nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "wsn.election.completed", conn.subjects[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, ClusterHeadsElected, decoded.Type)

	conn.err = errors.New("connection closed")
	assert.Error(t, p.Publish(context.Background(), e))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, e), context.Canceled)

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestMQTTPublisher_ActuatorTriggers(t *testing.T) {
	client := &fakeMQTT{}
	p := newMQTTPublisher(client, "field", nil)

	beacon, _ := New(BeaconSent, 111000, nil)
	require.NoError(t, p.Publish(context.Background(), beacon))
	assert.Empty(t, client.topics, "only actuator triggers are forwarded")

	trigger, err := New(ActuatorTriggered, 222005, map[string]interface{}{
		"message": "Activating sprinklers!",
		"reading": 37011,
	})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), trigger))

	require.Len(t, client.topics, 1)
	assert.Equal(t, "field/actuators/222005", client.topics[0])

	var cmd ActuatorCommand
	require.NoError(t, json.Unmarshal(client.payloads[0], &cmd))
	assert.Equal(t, trigger.ID, cmd.EventID)
	assert.Equal(t, uint64(222005), cmd.Address)
	assert.Equal(t, "Activating sprinklers!", cmd.Message)
	assert.Equal(t, int64(37011), cmd.Reading)

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublisher_Failures(t *testing.T) {
	trigger, _ := New(ActuatorTriggered, 222007, map[string]string{"message": "Contacting the RFS."})

	tests := []struct {
		name    string
		token   *fakeToken
		wantErr error
	}{
		{"broker error", &fakeToken{err: errors.New("not connected")}, nil},
		{"no acknowledgement before deadline", &fakeToken{pending: true}, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMQTTPublisher(&fakeMQTT{token: tt.token}, "", nil)
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := p.Publish(ctx, trigger)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Less(t, time.Since(start), publishTimeout, "the caller's deadline bounds the wait")
		})
	}
}

func TestMQTTPublisher_CancelledWhileWaiting(t *testing.T) {
	trigger, _ := New(ActuatorTriggered, 222007, nil)
	p := newMQTTPublisher(&fakeMQTT{token: &fakeToken{pending: true}}, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	assert.ErrorIs(t, p.Publish(ctx, trigger), context.Canceled)
}

type failingPublisher struct{ closed bool }

func (f *failingPublisher) Publish(context.Context, Event) error { return errors.New("down") }
func (f *failingPublisher) Close() error {
	f.closed = true
	return nil
}

func TestMultiPublisher(t *testing.T) {
	rec := NewRecorder()
	bad := &failingPublisher{}
	m := NewMultiPublisher(nil, bad, nil, rec)
	assert.Equal(t, 2, m.Len())

	e, _ := New(NodeAdded, 222001, nil)
	err := m.Publish(context.Background(), e)
	assert.Error(t, err)
	assert.Len(t, rec.Events(), 1, "a failing publisher does not block the others")

	require.NoError(t, m.Close())
	assert.True(t, bad.closed)
	assert.True(t, rec.Closed())
}

func TestRecorder_OfType(t *testing.T) {
	rec := NewRecorder()
	for _, typ := range []Type{NodeAdded, NodeAdded, BeaconSent} {
		e, _ := New(typ, 1, nil)
		require.NoError(t, rec.Publish(context.Background(), e))
	}

	assert.Len(t, rec.OfType(NodeAdded), 2)
	assert.Len(t, rec.OfType(BeaconSent), 1)
	assert.Empty(t, rec.OfType(ActuatorTriggered))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
}
