package inspection

import (
	"context"
	"fmt"

	"github.com/fentz26/icad/internal/alarm"
	"github.com/fentz26/icad/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Quarantine move settings for NG cassettes.
const (
	actionMove               = "MOVE"
	quarantinePriorityDetail = "0000"
)

// dispatch moves the cassette on. OK cassettes get an automatic move from
// their current port; NG cassettes are forced to quarantine. Any failure
// runs the compensating action.
func (o *Orchestrator) dispatch(ctx context.Context, r *run) {
	ctx, span := o.tracer.Start(ctx, "inspection.dispatch")
	defer span.End()

	cst, err := o.store.GetCassette(ctx, r.cstID)
	if err != nil || cst == nil {
		if err == nil {
			err = fmt.Errorf("cassette %s vanished before dispatch", r.cstID)
		}
		o.logger.Error("re-read cassette for dispatch failed", zap.String("cst_id", r.cstID), zap.Error(err))
		o.compensate(ctx, r, "re-read cassette: "+err.Error())
		span.SetStatus(codes.Error, "compensated")
		return
	}
	r.cst = cst

	var ok bool
	var target string
	r.dispatched = true
	switch r.result {
	case models.ICAResultOK:
		target = "auto from " + cst.Location
		ok = o.mover.AutoMove(ctx, cst, cst.Location, r.actor)
	default:
		target = o.cfg.QuarantineDest
		ok = o.mover.ForceMove(ctx, models.MoveRequest{
			Action:         actionMove,
			CassetteID:     cst.ID,
			Destination:    o.cfg.QuarantineDest,
			Priority:       models.PriorityCritical,
			PriorityDetail: quarantinePriorityDetail,
			UserID:         o.cfg.SystemUser,
			Overwrite:      "N",
		})
	}
	span.SetAttributes(attribute.String("ica.move_target", target), attribute.Bool("ica.move_ok", ok))

	if !ok {
		o.compensate(ctx, r, "move request failed: "+target)
		span.SetStatus(codes.Error, "compensated")
		return
	}

	r.to(StateDispatched)
	r.to(StateCompleted)
}

// compensate forces the cassette's unload request to MANUAL so an operator
// takes over. The workflow ends COMPENSATED even if this write fails.
func (o *Orchestrator) compensate(ctx context.Context, r *run, reason string) {
	_, err := o.store.UpdateCassette(ctx, r.cstID, func(c *models.Cassette) error {
		c.UnloadRequest = models.ModeManual
		c.UpdatedBy = r.actor
		return nil
	})
	if err != nil {
		o.logger.Error("compensation failed", zap.String("cst_id", r.cstID), zap.String("reason", reason), zap.Error(err))
	} else {
		o.logger.Warn("dispatch compensated: unload request set to MANUAL", zap.String("cst_id", r.cstID), zap.String("reason", reason))
	}

	o.alarms.Raise(ctx, alarm.KindMoveDispatchFail, r.cstID, r.actor, reason)
	r.compensated = true
	r.to(StateCompensated)
}
