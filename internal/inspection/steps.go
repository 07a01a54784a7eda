package inspection

import (
	"context"
	"strings"

	"github.com/fentz26/icad/internal/alarm"
	"github.com/fentz26/icad/internal/audit"
	"github.com/fentz26/icad/internal/models"
	"github.com/fentz26/icad/internal/store"
	"go.uber.org/zap"
)

// System code categories holding registration defaults.
const (
	CodeCategoryDimension = "CST_DIMENSION"
	CodeCategoryCapacity  = "CST_CAPACITY"
)

// fatal records an unexpected failure. Persistence errors carry their full
// detail in the reply message.
func (o *Orchestrator) fatal(ctx context.Context, r *run, op string, err error) stepOutcome {
	msg := msgInternalError
	if store.IsPersistence(err) {
		msg = err.Error()
	}
	r.fail(CodeInitErr, msg)

	o.logger.Error("ica workflow failed",
		zap.String("op", op),
		zap.String("tid", r.ev.TID),
		zap.String("cst_id", r.cstID),
		zap.Error(err),
	)
	o.alarms.Raise(ctx, alarm.KindInternalError, r.cstID, r.actor, op+": "+err.Error())
	return stepFatal
}

func (o *Orchestrator) validate(ctx context.Context, r *run) stepOutcome {
	required := []struct {
		name  string
		value string
	}{
		{"tid", r.ev.TID},
		{"cst_id", r.ev.CassetteID},
		{"ica_result", r.ev.ICAResult},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			r.fail(CodeValidation, msgMissingField(f.name))
			return stepReject
		}
	}

	raw := strings.TrimSpace(r.ev.ICAResult)
	r.result = models.ICAResult(strings.ToUpper(raw))
	if r.result != models.ICAResultOK && r.result != models.ICAResultNG {
		r.fail(CodeInvalidResult, msgInvalidResult(raw))
		return stepReject
	}

	mode, err := o.modes.CurrentMode(ctx, o.cfg.ModeDomain)
	if err != nil {
		return o.fatal(ctx, r, "read mode", err)
	}
	if mode == models.ModeManual {
		r.fail(CodeModeManual, msgModeManual)
		o.alarms.Raise(ctx, alarm.KindModeIsManual, r.cstID, r.actor, msgModeManual)
		return stepReject
	}

	r.to(StateValidated)
	return stepContinue
}

func (o *Orchestrator) locate(ctx context.Context, r *run) stepOutcome {
	cst, err := o.store.GetCassette(ctx, r.cstID)
	if err != nil {
		return o.fatal(ctx, r, "read cassette", err)
	}
	if cst == nil {
		msg := msgCstNotExist(r.cstID)
		r.fail(CodeCstNotExist, msg)
		o.alarms.Raise(ctx, alarm.KindCstIDNotExist, r.cstID, r.actor, msg)
		return stepReject
	}
	if !strings.EqualFold(strings.TrimSpace(cst.PortName), o.cfg.PortName) {
		msg := msgCstNotAtICA(r.cstID)
		r.fail(CodeCstNotAtICA, msg)
		o.alarms.Raise(ctx, alarm.KindCstNotAtICAPort, r.cstID, r.actor, msg+" (at "+cst.Location+")")
		return stepReject
	}

	r.cst = cst
	return stepContinue
}

// firstCode returns the first configured code of category, or "".
func (o *Orchestrator) firstCode(ctx context.Context, category string) (string, error) {
	codes, err := o.store.SystemCodes(ctx, category)
	if err != nil {
		return "", err
	}
	if len(codes) == 0 {
		return "", nil
	}
	return codes[0].Code, nil
}

// register assigns registration defaults to an unregistered cassette and
// tells MES about it. The status is re-checked inside the unit so a cassette
// is registered at most once.
func (o *Orchestrator) register(ctx context.Context, r *run) stepOutcome {
	if r.cst.RegStatus != models.RegStatusUnregistered {
		return stepContinue
	}

	dimension, err := o.firstCode(ctx, CodeCategoryDimension)
	if err != nil {
		return o.fatal(ctx, r, "read dimension codes", err)
	}
	capacity, err := o.firstCode(ctx, CodeCategoryCapacity)
	if err != nil {
		return o.fatal(ctx, r, "read capacity codes", err)
	}

	registered := false
	cst, err := o.store.UpdateCassette(ctx, r.cstID, func(c *models.Cassette) error {
		if c.RegStatus != models.RegStatusUnregistered {
			return nil
		}
		c.Dimension = dimension
		c.Capacity = capacity
		c.UpdatedBy = r.actor
		c.RegStatus = models.RegStatusRegistered
		c.ReturnType = models.ReturnTypeNewCassette
		c.QtyType = models.QtyTypeEmpty
		registered = true
		return nil
	})
	if err != nil {
		return o.fatal(ctx, r, "register cassette", err)
	}
	r.cst = cst
	if !registered {
		return stepContinue
	}
	r.registered = true
	r.to(StateRegistered)

	res, err := o.mes.NotifyNewCassette(ctx, r.cstID, r.actor)
	if err != nil {
		o.logger.Warn("MES new cassette notify failed", zap.String("cst_id", r.cstID), zap.Error(err))
	}
	success := err == nil && res.OK()
	if !success {
		o.logger.Warn("MES rejected new cassette",
			zap.String("cst_id", r.cstID),
			zap.String("status", res.Status),
			zap.String("description", res.Description),
		)
	}

	_, err = o.audit.AppendTransaction(ctx, audit.TransactionEntry{
		CassetteID:  r.cstID,
		UserID:      r.actor,
		MessageName: MessageRegNewCst,
		Action:      ActionCstReg,
		Outcome:     audit.OutcomeOf(success),
		Location:    cst.Location,
		Channel:     r.ev.Channel,
	})
	if err != nil {
		return o.fatal(ctx, r, "audit registration", err)
	}
	return stepContinue
}

func (o *Orchestrator) apply(ctx context.Context, r *run) stepOutcome {
	if r.result == models.ICAResultNG {
		cst, err := o.store.UpdateCassette(ctx, r.cstID, func(c *models.Cassette) error {
			c.ICAResult = models.ICAResultNG
			c.ICARequired = true
			c.UpdatedBy = r.actor
			return nil
		})
		if err != nil {
			return o.fatal(ctx, r, "apply NG result", err)
		}
		r.cst = cst
		r.to(StateResultApplied)
		return stepContinue
	}

	cst, err := o.store.UpdateCassette(ctx, r.cstID, func(c *models.Cassette) error {
		c.ICAResult = models.ICAResultOK
		c.ReturnType = models.ReturnTypeEmptyReturn
		c.QtyType = models.QtyTypeEmpty
		c.Damage = models.DamageNone
		c.QAHold = models.QAHoldNone
		c.ICARequired = false
		c.CleanRequired = true
		c.UpdatedBy = r.actor
		return nil
	})
	if err != nil {
		return o.fatal(ctx, r, "apply OK result", err)
	}
	r.cst = cst
	r.to(StateResultApplied)

	rec, err := o.store.LastShipRecv(ctx, r.cstID, cst.CycleID, models.ShipRecvReceive)
	if err != nil {
		return o.fatal(ctx, r, "read receive record", err)
	}
	if rec != nil {
		if err := o.store.UpdateShipRecvReturnType(ctx, rec.ID, models.ReturnTypeEmptyReturn); err != nil {
			return o.fatal(ctx, r, "update receive record", err)
		}
	}

	res, err := o.mes.NotifyEmptied(ctx, r.cstID, r.actor)
	if err != nil {
		o.logger.Warn("MES emptied notify failed", zap.String("cst_id", r.cstID), zap.Error(err))
	} else {
		o.logger.Info("MES emptied notify",
			zap.String("cst_id", r.cstID),
			zap.Int("code", res.Code()),
			zap.String("description", res.Description),
		)
	}
	r.to(StateNotified)
	return stepContinue
}

// writeAudit appends the communication and transaction records for the
// event. It reports false if either write failed.
func (o *Orchestrator) writeAudit(ctx context.Context, r *run) bool {
	ok := true

	_, err := o.audit.AppendCommunication(ctx, audit.CommunicationEntry{
		System:      SystemILCP,
		MessageName: r.ev.MessageName,
		TID:         r.ev.TID,
		CassetteID:  r.cstID,
		Direction:   audit.DirectionIn,
		UserID:      r.actor,
		Payload:     r.ev,
	})
	if err != nil {
		ok = false
		if r.code.OK() {
			o.fatal(ctx, r, "audit communication", err)
		}
	}

	location := ""
	if r.cst != nil {
		location = r.cst.Location
	}
	_, err = o.audit.AppendTransaction(ctx, audit.TransactionEntry{
		CassetteID:  r.cstID,
		UserID:      r.actor,
		MessageName: r.ev.MessageName,
		Action:      ActionICAResult,
		Outcome:     audit.OutcomeOf(r.code.OK()),
		Location:    location,
		Channel:     r.ev.Channel,
	})
	if err != nil {
		ok = false
		if r.code.OK() {
			o.fatal(ctx, r, "audit transaction", err)
		}
	}

	if !ok {
		o.logger.Error("audit write failed", zap.String("tid", r.ev.TID), zap.String("cst_id", r.cstID))
	}
	return ok
}
