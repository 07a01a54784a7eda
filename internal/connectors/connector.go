// Package connectors defines the interfaces to the external systems the
// inspection workflow talks to: MES and the material control system.
package connectors

import (
	"context"
	"strconv"
	"strings"

	"github.com/fentz26/icad/internal/models"
)

// Connector is implemented by every external system client.
type Connector interface {
	// Name returns the connector identifier.
	Name() string
}

// MESResult is the status/description pair carried in an MES reply.
type MESResult struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Code returns the translated numeric status. Zero means success.
func (r MESResult) Code() int {
	return TranslateStatus(r.Status)
}

// OK reports whether MES accepted the message.
func (r MESResult) OK() bool {
	return r.Code() == 0
}

// TranslateStatus parses an MES status. Anything that is not an integer
// maps to -1.
func TranslateStatus(status string) int {
	n, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil {
		return -1
	}
	return n
}

// MESNotifier sends cassette lifecycle events to MES.
type MESNotifier interface {
	Connector

	// NotifyNewCassette reports a newly registered cassette.
	NotifyNewCassette(ctx context.Context, cstID, actor string) (MESResult, error)

	// NotifyEmptied reports a cassette that passed inspection empty.
	NotifyEmptied(ctx context.Context, cstID, actor string) (MESResult, error)
}

// MoveDispatcher submits move requests to the material control system.
type MoveDispatcher interface {
	Connector

	// AutoMove requests a move from port to the next station for it.
	AutoMove(ctx context.Context, cst *models.Cassette, port, actor string) bool

	// ForceMove submits an explicit move request.
	ForceMove(ctx context.Context, req models.MoveRequest) bool
}
