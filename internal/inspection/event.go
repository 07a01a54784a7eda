package inspection

import (
	"context"

	"github.com/fentz26/icad/internal/models"
)

// Message and action names used in replies and audit records.
const (
	MessageICAResult = "ICAResult"
	ActionICAResult  = "CST_ICA_RESULT"

	MessageRegNewCst = "RegNewCst"
	ActionCstReg     = "CST_REG"

	SystemILCP = "ILCP"
)

// Event is an inbound ICA result.
type Event struct {
	TID         string         `json:"tid" yaml:"tid"`
	MessageName string         `json:"msg_name,omitempty" yaml:"msg_name"`
	UserID      string         `json:"user_id,omitempty" yaml:"user_id"`
	CassetteID  string         `json:"cst_id" yaml:"cst_id"`
	ICAResult   string         `json:"ica_result" yaml:"ica_result"`
	Channel     models.Channel `json:"-" yaml:"-"`
}

// Reply is the fixed-shape response to an Event.
type Reply struct {
	TID        string `json:"tid"`
	Action     string `json:"action"`
	ReturnCode Code   `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
	TimeStamp  string `json:"time_stamp"`
}

// ReplySender delivers the reply to the caller. It is invoked exactly once
// per processed event, before dispatch starts.
type ReplySender func(ctx context.Context, r Reply) error

// State is a workflow state.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateValidated     State = "VALIDATED"
	StateRegistered    State = "REGISTERED"
	StateResultApplied State = "RESULT_APPLIED"
	StateNotified      State = "NOTIFIED"
	StateDispatched    State = "DISPATCHED"
	StateCompleted     State = "COMPLETED"
	StateRejected      State = "REJECTED"
	StateCompensated   State = "COMPENSATED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateCompensated, StateFailed:
		return true
	}
	return false
}

// Result describes how one event was processed.
type Result struct {
	State       State
	Reply       Reply
	Trail       []State
	Registered  bool
	Dispatched  bool // a move was attempted
	Compensated bool
	Duplicate   bool // answered from the event ledger
}

// Processor runs the workflow for one event.
type Processor interface {
	Process(ctx context.Context, ev Event, send ReplySender) Result
}

// DuplicateAuditor audits a redelivered event that was answered without
// running the workflow.
type DuplicateAuditor interface {
	AuditDuplicate(ctx context.Context, ev Event, reply Reply)
}

var (
	_ Processor        = (*Orchestrator)(nil)
	_ DuplicateAuditor = (*Orchestrator)(nil)
)
