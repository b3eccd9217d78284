package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	// DefaultTopicPrefix is prepended to every MQTT topic
	DefaultTopicPrefix = "wsn"
	publishTimeout     = 2 * time.Second
	disconnectQuiesce  = 250
)

// mqttClient is the part of mqtt.Client the publisher needs
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// ActuatorCommand is the payload sent to a triggered actuator
type ActuatorCommand struct {
	EventID   string    `json:"eventId"`
	Address   uint64    `json:"address"`
	Message   string    `json:"message"`
	Reading   int64     `json:"reading"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTPublisher forwards actuator triggers to field devices over MQTT.
// Each actuator listens on <prefix>/actuators/<address>. Other events are
// ignored.
type MQTTPublisher struct {
	client mqttClient
	prefix string
	logger *zap.Logger
}

// NewMQTTPublisher connects to broker with the given client id
func NewMQTTPublisher(broker, clientID, prefix string, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, token.Error())
	}
	return newMQTTPublisher(client, prefix, logger), nil
}

func newMQTTPublisher(client mqttClient, prefix string, logger *zap.Logger) *MQTTPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

// Topic returns the command topic of an actuator
func (p *MQTTPublisher) Topic(address uint64) string {
	return fmt.Sprintf("%s/actuators/%d", p.prefix, address)
}

func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if e.Type != ActuatorTriggered {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var trigger struct {
		Message string `json:"message"`
		Reading int64  `json:"reading"`
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &trigger); err != nil {
			return fmt.Errorf("decode actuator trigger: %w", err)
		}
	}

	payload, err := json.Marshal(ActuatorCommand{
		EventID:   e.ID,
		Address:   e.Address,
		Message:   trigger.Message,
		Reading:   trigger.Reading,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return err
	}

	topic := p.Topic(e.Address)
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	token := p.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.logger.Info("Sent actuator command",
		zap.String("topic", topic),
		zap.String("message", trigger.Message))
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}
