// Package mcs submits cassette move requests to the material control
// system over Kafka.
package mcs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fentz26/icad/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ActionMove is the only move action icad submits.
const ActionMove = "MOVE"

// DefaultPriorityDetail is sent when a request carries no detail.
const DefaultPriorityDetail = "0000"

// Publisher is the Kafka writer used to submit requests.
type Publisher interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
}

// Dispatcher implements connectors.MoveDispatcher. Automatic moves are
// resolved from a port to next-station route table.
type Dispatcher struct {
	publisher Publisher
	routes    map[string]string
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new Dispatcher. Route keys are matched case-insensitively.
func New(p Publisher, routes map[string]string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := make(map[string]string, len(routes))
	for port, dest := range routes {
		r[strings.ToUpper(port)] = dest
	}
	return &Dispatcher{
		publisher: p,
		routes:    r,
		logger:    logger.Named("mcs"),
		now:       time.Now,
	}
}

// Name returns the connector identifier.
func (d *Dispatcher) Name() string {
	return "mcs"
}

// NextStation returns the configured destination for port.
func (d *Dispatcher) NextStation(port string) (string, bool) {
	dest, ok := d.routes[strings.ToUpper(strings.TrimSpace(port))]
	return dest, ok && dest != ""
}

// CanAutoMove reports whether port has an automatic route.
func (d *Dispatcher) CanAutoMove(port string) bool {
	_, ok := d.NextStation(port)
	return ok
}

// AutoMove submits a NORMAL priority move from port to its next station.
// It returns false when port has no route or the submit fails.
func (d *Dispatcher) AutoMove(ctx context.Context, cst *models.Cassette, port, actor string) bool {
	dest, ok := d.NextStation(port)
	if !ok {
		d.logger.Warn("no automatic route for port", zap.String("cst_id", cst.ID), zap.String("port", port))
		return false
	}
	return d.ForceMove(ctx, models.MoveRequest{
		Action:         ActionMove,
		CassetteID:     cst.ID,
		Destination:    dest,
		Priority:       models.PriorityNormal,
		PriorityDetail: DefaultPriorityDetail,
		UserID:         actor,
		Overwrite:      "N",
	})
}

// ForceMove publishes req keyed by cassette ID.
func (d *Dispatcher) ForceMove(ctx context.Context, req models.MoveRequest) bool {
	if req.Action == "" {
		req.Action = ActionMove
	}
	if req.PriorityDetail == "" {
		req.PriorityDetail = DefaultPriorityDetail
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = d.now().UTC()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		d.logger.Error("marshal move request", zap.String("cst_id", req.CassetteID), zap.Error(err))
		return false
	}

	msg := kafka.Message{
		Key:   []byte(req.CassetteID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(req.Action)},
			{Key: "priority", Value: []byte(req.Priority)},
		},
	}
	if err := d.publisher.WriteMessage(ctx, msg); err != nil {
		d.logger.Error("submit move request failed",
			zap.String("cst_id", req.CassetteID),
			zap.String("dest", req.Destination),
			zap.Error(err),
		)
		return false
	}

	d.logger.Info("move request submitted",
		zap.String("cst_id", req.CassetteID),
		zap.String("dest", req.Destination),
		zap.String("priority", req.Priority),
	)
	return true
}

// LogPublisher accepts every request and only logs it. It stands in for
// Kafka when no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

// WriteMessage logs msg.
func (p LogPublisher) WriteMessage(_ context.Context, msg kafka.Message) error {
	if p.Logger != nil {
		p.Logger.Info("move request (no broker configured)", zap.ByteString("cst_id", msg.Key), zap.ByteString("request", msg.Value))
	}
	return nil
}
