// Package inspection implements the ICA result workflow.
//
// One event runs RECEIVED -> VALIDATED -> (REGISTERED) -> RESULT_APPLIED ->
// (NOTIFIED) -> DISPATCHED -> COMPLETED. Rejections stop at REJECTED before
// any mutation. Store failures stop at FAILED. A failed move ends in
// COMPENSATED with the cassette's unload request forced to MANUAL.
//
// Each mutation is its own committed unit. The reply is sent once the
// result is recorded and audited; the move is dispatched afterwards.
package inspection

import (
	"context"
	"strings"
	"time"

	"github.com/fentz26/icad/internal/audit"
	"github.com/fentz26/icad/internal/connectors"
	"github.com/fentz26/icad/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CassetteStore is the cassette persistence used by the workflow.
type CassetteStore interface {
	GetCassette(ctx context.Context, id string) (*models.Cassette, error)
	UpdateCassette(ctx context.Context, id string, fn func(*models.Cassette) error) (*models.Cassette, error)
	SystemCodes(ctx context.Context, category string) ([]models.SystemCode, error)
	LastShipRecv(ctx context.Context, cstID, cycleID string, kind models.ShipRecvKind) (*models.ShipRecv, error)
	UpdateShipRecvReturnType(ctx context.Context, id, returnType string) error
}

// ModeGate reports the operating mode of a subsystem.
type ModeGate interface {
	CurrentMode(ctx context.Context, domain string) (models.Mode, error)
}

// AlarmSink records operator-visible faults. It never fails.
type AlarmSink interface {
	Raise(ctx context.Context, kind, cassetteID, actor, message string)
}

// AuditLog appends transaction and communication records.
type AuditLog interface {
	AppendTransaction(ctx context.Context, e audit.TransactionEntry) (*models.Transaction, error)
	AppendCommunication(ctx context.Context, e audit.CommunicationEntry) (*models.Communication, error)
}

// Config holds the workflow settings.
type Config struct {
	PortName       string `mapstructure:"port_name" yaml:"port_name"`
	ModeDomain     string `mapstructure:"mode_domain" yaml:"mode_domain"`
	QuarantineDest string `mapstructure:"quarantine_dest" yaml:"quarantine_dest"`
	SystemUser     string `mapstructure:"system_user" yaml:"system_user"`
	DefaultUser    string `mapstructure:"default_user" yaml:"default_user"`
}

// DefaultConfig returns the standard fab settings.
func DefaultConfig() Config {
	return Config{
		PortName:       "ICA",
		ModeDomain:     "ICA_AUTO",
		QuarantineDest: "STK-00",
		SystemUser:     "CCMS",
		DefaultUser:    SystemILCP,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PortName == "" {
		c.PortName = d.PortName
	}
	if c.ModeDomain == "" {
		c.ModeDomain = d.ModeDomain
	}
	if c.QuarantineDest == "" {
		c.QuarantineDest = d.QuarantineDest
	}
	if c.SystemUser == "" {
		c.SystemUser = d.SystemUser
	}
	if c.DefaultUser == "" {
		c.DefaultUser = d.DefaultUser
	}
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store  CassetteStore
	Modes  ModeGate
	Alarms AlarmSink
	MES    connectors.MESNotifier
	Mover  connectors.MoveDispatcher
	Audit  AuditLog
	Logger *zap.Logger
	Tracer trace.Tracer
}

// Orchestrator runs the ICA result workflow.
type Orchestrator struct {
	cfg    Config
	store  CassetteStore
	modes  ModeGate
	alarms AlarmSink
	mes    connectors.MESNotifier
	mover  connectors.MoveDispatcher
	audit  AuditLog
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a new Orchestrator.
func New(cfg Config, d Deps) *Orchestrator {
	cfg.applyDefaults()
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("github.com/fentz26/icad/internal/inspection")
	}
	return &Orchestrator{
		cfg:    cfg,
		store:  d.Store,
		modes:  d.Modes,
		alarms: d.Alarms,
		mes:    d.MES,
		mover:  d.Mover,
		audit:  d.Audit,
		logger: d.Logger.Named("inspection"),
		tracer: d.Tracer,
		now:    time.Now,
	}
}

// run carries the state of one workflow execution.
type run struct {
	ev     Event
	cstID  string
	actor  string
	result models.ICAResult
	cst    *models.Cassette

	code Code
	msg  string

	state       State
	trail       []State
	registered  bool
	dispatched  bool
	compensated bool
}

func (r *run) to(s State) {
	r.state = s
	r.trail = append(r.trail, s)
}

func (r *run) fail(code Code, msg string) {
	r.code = code
	r.msg = msg
}

func (o *Orchestrator) newRun(ev Event) *run {
	r := &run{
		ev:    ev,
		cstID: strings.TrimSpace(ev.CassetteID),
		actor: strings.TrimSpace(ev.UserID),
		code:  CodeOK,
		msg:   msgSuccess,
	}
	if r.actor == "" {
		r.actor = o.cfg.DefaultUser
	}
	if r.ev.MessageName == "" {
		r.ev.MessageName = MessageICAResult
	}
	if r.ev.Channel == "" {
		r.ev.Channel = models.ChannelOnline
	}
	r.to(StateReceived)
	return r
}

type step struct {
	name string
	fn   func(ctx context.Context, r *run) stepOutcome
}

// Process runs the workflow for ev. The reply is handed to send after the
// result has been recorded and audited; the move is dispatched after that,
// on a context that is not cancelled with ctx. Process never returns an
// error: every outcome is reported through the reply and the Result.
func (o *Orchestrator) Process(ctx context.Context, ev Event, send ReplySender) Result {
	ctx, span := o.tracer.Start(ctx, "inspection.Process", trace.WithAttributes(
		attribute.String("ica.tid", ev.TID),
		attribute.String("ica.cst_id", ev.CassetteID),
		attribute.String("ica.result", ev.ICAResult),
	))
	defer span.End()

	r := o.newRun(ev)
	steps := []step{
		{"validate", o.validate},
		{"locate", o.locate},
		{"register", o.register},
		{"apply", o.apply},
	}

	proceed := true
	for _, st := range steps {
		out := o.runStep(ctx, st, r)
		if out == stepReject {
			r.to(StateRejected)
		}
		if out == stepFatal {
			r.to(StateFailed)
		}
		if out != stepContinue {
			proceed = false
			break
		}
	}

	if !o.writeAudit(ctx, r) && proceed {
		proceed = false
		r.to(StateFailed)
	}

	reply := o.buildReply(r)
	if send != nil {
		if err := send(ctx, reply); err != nil {
			o.logger.Error("send reply failed", zap.String("tid", reply.TID), zap.String("cst_id", r.cstID), zap.Error(err))
		}
	}

	if proceed {
		o.dispatch(context.WithoutCancel(ctx), r)
	}

	span.SetAttributes(
		attribute.String("ica.state", string(r.state)),
		attribute.String("ica.return_code", string(r.code)),
	)
	if r.state == StateFailed || r.state == StateCompensated {
		span.SetStatus(codes.Error, string(r.state))
	}

	o.logger.Info("ica result processed",
		zap.String("tid", ev.TID),
		zap.String("cst_id", r.cstID),
		zap.String("result", string(r.result)),
		zap.String("state", string(r.state)),
		zap.String("code", string(r.code)),
		zap.String("channel", string(r.ev.Channel)),
	)

	return Result{
		State:       r.state,
		Reply:       reply,
		Trail:       r.trail,
		Registered:  r.registered,
		Dispatched:  r.dispatched,
		Compensated: r.compensated,
	}
}

// AuditDuplicate writes the communication and transaction records for a
// redelivered event answered with reply. Nothing else is touched: the
// cassette keeps its state and no move is dispatched.
func (o *Orchestrator) AuditDuplicate(ctx context.Context, ev Event, reply Reply) {
	ctx, span := o.tracer.Start(ctx, "inspection.AuditDuplicate", trace.WithAttributes(
		attribute.String("ica.tid", ev.TID),
		attribute.String("ica.cst_id", ev.CassetteID),
	))
	defer span.End()

	r := o.newRun(ev)
	r.fail(reply.ReturnCode, reply.ReturnMsg)
	if r.cstID != "" {
		cst, err := o.store.GetCassette(ctx, r.cstID)
		if err == nil {
			r.cst = cst
		}
	}
	if !o.writeAudit(ctx, r) {
		span.SetStatus(codes.Error, "audit write failed")
	}
}

func (o *Orchestrator) runStep(ctx context.Context, st step, r *run) stepOutcome {
	ctx, span := o.tracer.Start(ctx, "inspection."+st.name)
	defer span.End()

	out := st.fn(ctx, r)
	if out != stepContinue {
		span.SetAttributes(attribute.String("ica.return_code", string(r.code)))
	}
	if out == stepFatal {
		span.SetStatus(codes.Error, r.msg)
	}
	return out
}

func (o *Orchestrator) buildReply(r *run) Reply {
	return Reply{
		TID:        r.ev.TID,
		Action:     ActionICAResult,
		ReturnCode: r.code,
		ReturnMsg:  r.msg,
		TimeStamp:  o.now().Format("2006-01-02 15:04:05.000"),
	}
}
