//go:build !no_mqtt

package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures an MQTTSink.
type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTSink publishes every notification as JSON to
// <prefix>/notify/<kind>, with a retained online/offline bridge-state
// topic and last-will, the same connection shape the teacher's MQTT
// bridge uses.
type MQTTSink struct {
	client pahomqtt.Client
	prefix string
	logger *slog.Logger
}

// NewMQTTSink connects to cfg.Broker and returns a ready-to-publish sink.
func NewMQTTSink(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	logger = logger.With("component", "notify-mqtt")
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zwave-go-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			logger.Info("mqtt connected")
			c.Publish(cfg.TopicPrefix+"/bridge/state", 1, true, "online")
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("notify: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect: %w", err)
	}
	return &MQTTSink{client: client, prefix: cfg.TopicPrefix, logger: logger}, nil
}

// Publish implements Sink.
func (s *MQTTSink) Publish(e Event) {
	body, err := json.Marshal(struct {
		Kind   string      `json:"kind"`
		NodeID byte        `json:"nodeId,omitempty"`
		Data   interface{} `json:"data,omitempty"`
	}{Kind: e.Kind.String(), NodeID: e.NodeID, Data: e.Data})
	if err != nil {
		s.logger.Error("notify: marshal event", "err", err)
		return
	}
	topic := fmt.Sprintf("%s/notify/%s", s.prefix, e.Kind.String())
	s.client.Publish(topic, 0, false, body)
}

// Close disconnects from the broker, publishing the bridge offline state.
func (s *MQTTSink) Close() {
	s.client.Publish(s.prefix+"/bridge/state", 1, true, "offline")
	s.client.Disconnect(1000)
}
