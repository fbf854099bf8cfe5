// Package telemetry publishes drive monitor samples to a message broker.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Producer publishes one message to a topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key string, data interface{}) error
	Close()
}

// Sample is the payload of one monitor frame.
type Sample struct {
	Time   time.Time          `json:"time"`
	Board  string             `json:"board"`
	Values map[string]float64 `json:"values"`
}

// NewSample names the values of a frame. Values beyond the known names
// are dropped.
func NewSample(board string, at time.Time, names []string, values []float64) Sample {
	s := Sample{Time: at, Board: board, Values: make(map[string]float64, len(values))}
	for i, v := range values {
		if i >= len(names) {
			break
		}
		s.Values[names[i]] = v
	}
	return s
}

// Config selects and configures the broker.
type Config struct {
	Kind     string         `mapstructure:"kind"` // none, kafka, rabbitmq or mqtt
	Topic    string         `mapstructure:"topic"`
	Workers  int            `mapstructure:"workers"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

// New builds the producer named by cfg.Kind.
func New(cfg Config, logger *zap.Logger) (Producer, error) {
	switch cfg.Kind {
	case "", "none":
		return NewNoOpProducer(), nil
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, logger)
	case "rabbitmq":
		return NewRabbitMQProducer(cfg.RabbitMQ, logger)
	case "mqtt":
		return NewMQTTProducer(cfg.MQTT, logger)
	}
	return nil, fmt.Errorf("unknown telemetry kind %q", cfg.Kind)
}

// NoOpProducer is a dummy producer used when telemetry is disabled
type NoOpProducer struct{}

func NewNoOpProducer() *NoOpProducer {
	return &NoOpProducer{}
}

func (p *NoOpProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	return nil
}

func (p *NoOpProducer) Close() {}
