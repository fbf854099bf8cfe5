package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig addresses the MQTT broker.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"` // tcp://host:port
	ClientID string `mapstructure:"client_id"`
	QoS      byte   `mapstructure:"qos"`
}

type MQTTProducer struct {
	client mqtt.Client
	qos    byte
	logger *zap.Logger
}

var _ Producer = (*MQTTProducer)(nil)

func NewMQTTProducer(cfg MQTTConfig, logger *zap.Logger) (*MQTTProducer, error) {
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", cfg.QoS)
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	// With ConnectRetry the token completes once the first attempt is made
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: %w", token.Error())
	}
	return &MQTTProducer{client: client, qos: cfg.QoS, logger: logger}, nil
}

func (p *MQTTProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if key != "" {
		topic += "/" + key
	}

	token := p.client.Publish(topic, p.qos, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTProducer) Close() {
	p.client.Disconnect(250)
}
