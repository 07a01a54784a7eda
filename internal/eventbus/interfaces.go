// Package eventbus carries ICA results and their replies over Kafka.
package eventbus

import (
	"context"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/segmentio/kafka-go"
)

// Producer writes single messages.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer fetches messages one at a time and commits their offsets
// explicitly.
type Consumer interface {
	FetchMessage(ctx context.Context, msg *kafka.Message) error
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Submitter queues an event for processing.
type Submitter interface {
	Submit(ctx context.Context, ev inspection.Event, send inspection.ReplySender) error
}
