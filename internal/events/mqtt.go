package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// MQTTPublisher publishes JSON encoded events with paho.
type MQTTPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

// DialMQTT connects to the broker and returns a publisher.
func DialMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID == "" {
		cfg.ClientID = "panelflow"
	}
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return NewMQTTPublisher(client, cfg, logger), nil
}

// NewMQTTPublisher wraps an already configured client.
func NewMQTTPublisher(client mqtt.Client, cfg MQTTConfig, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, qos: cfg.QoS, timeout: cfg.Timeout, logger: logger}
}

// Publish encodes the event and waits for the broker acknowledgement, up to
// the configured timeout or ctx, whichever is shorter.
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	if event.Topic == "" {
		return fmt.Errorf("publish %s: empty topic", event.Kind)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Kind, err)
	}
	token := p.client.Publish(event.Topic, p.qos, false, payload)
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to topic %s: timed out", event.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to topic %s: %w", event.Topic, err)
	}
	p.logger.Debug("event published", zap.String("topic", event.Topic), zap.String("kind", string(event.Kind)))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
