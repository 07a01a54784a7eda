package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/models"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// HeaderReturnCode carries the symbolic return code on reply messages.
const HeaderReturnCode = "return_code"

// errUndecodable marks a message that can never be processed.
var errUndecodable = errors.New("undecodable ICA result message")

// ConsumerService reads ICA results from Kafka, submits them for
// processing and publishes each reply.
type ConsumerService struct {
	consumer   Consumer
	submitter  Submitter
	replies    Producer
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

// NewConsumerService wires a consumer loop. replies may be nil, in which
// case replies are only logged.
func NewConsumerService(consumer Consumer, submitter Submitter, replies Producer, logger *zap.Logger) *ConsumerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumerService{
		consumer:   consumer,
		submitter:  submitter,
		replies:    replies,
		propagator: otel.GetTextMapPropagator(),
		logger:     logger.Named("eventbus"),
	}
}

// Start runs the fetch loop until ctx is done. An offset is committed only
// after its event is accepted by the worker pool, or when the message can
// never be decoded. If the pool refuses an event the loop stops with that
// error and the offset stays uncommitted, so the event is fetched again
// after restart.
func (c *ConsumerService) Start(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	defer c.logger.Info("kafka consumer finished")

	for {
		var msg kafka.Message
		if err := c.consumer.FetchMessage(ctx, &msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.logger.Info("context done, exiting kafka fetch loop", zap.Error(err))
				return nil
			}
			c.logger.Error("fetch from kafka failed", zap.Error(err))
			continue
		}

		if err := c.handle(ctx, msg); err != nil && !errors.Is(err, errUndecodable) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.consumer.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("commit offset failed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *ConsumerService) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := c.extractTraceContext(ctx, msg.Headers)

	var ev inspection.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error("invalid ICA result message",
			zap.Error(err),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("raw_value", msg.Value),
		)
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	ev.Channel = models.ChannelOnline

	if err := c.submitter.Submit(msgCtx, ev, c.publishReply); err != nil {
		c.logger.Error("submit ICA result failed", zap.String("tid", ev.TID), zap.String("cst_id", ev.CassetteID), zap.Error(err))
		return err
	}
	c.logger.Debug("ICA result queued", zap.String("tid", ev.TID), zap.Int64("offset", msg.Offset))
	return nil
}

// extractTraceContext continues the producer's trace, if any.
func (c *ConsumerService) extractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return c.propagator.Extract(ctx, carrier)
}

// publishReply is the ReplySender handed to the workflow.
func (c *ConsumerService) publishReply(ctx context.Context, r inspection.Reply) error {
	if c.replies == nil {
		c.logger.Info("reply", zap.String("tid", r.TID), zap.String("return_code", string(r.ReturnCode)))
		return nil
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(r.TID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderReturnCode, Value: []byte(r.ReturnCode.Name())},
		},
	}
	if err := c.replies.WriteMessage(ctx, msg); err != nil {
		c.logger.Error("publish reply failed", zap.String("tid", r.TID), zap.Error(err))
		return err
	}
	return nil
}
