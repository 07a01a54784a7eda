package eventbus

import (
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ClientID names this service on the broker.
const ClientID = "icad"

// Config holds the broker settings. An empty Brokers list disables the bus.
type Config struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	EventTopic   string        `yaml:"event_topic" mapstructure:"event_topic"`
	ReplyTopic   string        `yaml:"reply_topic" mapstructure:"reply_topic"`
	MoveTopic    string        `yaml:"move_topic" mapstructure:"move_topic"`
	GroupID      string        `yaml:"group_id" mapstructure:"group_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout"`
}

// DefaultConfig returns the default topic layout with no brokers.
func DefaultConfig() Config {
	return Config{
		EventTopic:   "ica.results",
		ReplyTopic:   "ica.replies",
		MoveTopic:    "mcs.move-requests",
		GroupID:      "icad",
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Enabled reports whether any broker is configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewReader opens a traced group reader on the event topic.
func NewReader(cfg Config) (*otelkafka.Reader, error) {
	base := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.EventTopic,
		GroupID: cfg.GroupID,
	})
	return otelkafka.NewReader(base)
}

// NewWriter opens a traced writer on topic. Trace context is injected
// into the message headers.
func NewWriter(cfg Config, topic string, tp trace.TracerProvider) (*otelkafka.Writer, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
	}

	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", ClientID),
			},
		),
	)
}
