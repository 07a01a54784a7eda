// Package models defines the core domain types for icad.
package models

import "time"

// RegStatus is the registration state of a cassette.
type RegStatus string

const (
	RegStatusUnregistered RegStatus = "UNREG"
	RegStatusRegistered   RegStatus = "USED"
)

// ICAResult is the outcome of an automated inspection.
type ICAResult string

const (
	ICAResultNone ICAResult = ""
	ICAResultOK   ICAResult = "OK"
	ICAResultNG   ICAResult = "NG"
)

// Return-type, quantity, damage and QA-hold classifications.
const (
	ReturnTypeNewCassette = "NEW_CST"
	ReturnTypeEmptyReturn = "EMPTY_RET"

	QtyTypeEmpty = "EMPTY"

	DamageNone = "NO_DAMAGE"
	QAHoldNone = "NO_HOLD"
)

// Mode is an operating mode reported by the mode gate.
type Mode string

const (
	ModeAuto   Mode = "AUTO"
	ModeManual Mode = "MANUAL"
)

// Cassette is the authoritative record of a transport cassette.
type Cassette struct {
	ID            string    `json:"cst_id" yaml:"cst_id"`
	CycleID       string    `json:"cycle_id,omitempty" yaml:"cycle_id"`
	Location      string    `json:"location" yaml:"location"`   // port ID, e.g. ICA-01
	PortName      string    `json:"port_name" yaml:"port_name"` // physical port name, e.g. ICA
	RegStatus     RegStatus `json:"reg_status" yaml:"reg_status"`
	ICAResult     ICAResult `json:"ica_result" yaml:"ica_result"`
	ICARequired   bool      `json:"ica_required" yaml:"ica_required"`
	CleanRequired bool      `json:"clean_required" yaml:"clean_required"`
	ReturnType    string    `json:"return_type" yaml:"return_type"`
	QtyType       string    `json:"qty_type" yaml:"qty_type"`
	Damage        string    `json:"damage" yaml:"damage"`
	QAHold        string    `json:"qa_hold" yaml:"qa_hold"`
	UnloadRequest Mode      `json:"unload_request" yaml:"unload_request"`
	Dimension     string    `json:"dimension" yaml:"dimension"`
	Capacity      string    `json:"capacity" yaml:"capacity"`
	UpdatedBy     string    `json:"updated_by,omitempty" yaml:"updated_by"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// ShipRecvKind distinguishes shipment and receive records.
type ShipRecvKind string

const (
	ShipRecvShip    ShipRecvKind = "SHIP"
	ShipRecvReceive ShipRecvKind = "RECEIVE"
)

// ShipRecv records a cassette leaving or arriving at the fab.
type ShipRecv struct {
	ID         string       `json:"id" yaml:"-"`
	CassetteID string       `json:"cst_id" yaml:"cst_id"`
	CycleID    string       `json:"cycle_id" yaml:"cycle_id"`
	Kind       ShipRecvKind `json:"kind" yaml:"kind"`
	ReturnType string       `json:"return_type" yaml:"return_type"`
	CreatedAt  time.Time    `json:"created_at" yaml:"-"`
}

// SystemCode is one configured code value within a category.
type SystemCode struct {
	Category  string `json:"category" yaml:"category"`
	Code      string `json:"code" yaml:"code"`
	SortOrder int    `json:"sort_order" yaml:"sort_order"`
}

// SystemStatus is a named status flag, e.g. the ICA_AUTO mode switch.
type SystemStatus struct {
	StatusType string    `json:"status_type" yaml:"status_type"`
	Name       string    `json:"name" yaml:"name"`
	Value      string    `json:"value" yaml:"value"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// Outcome is the audit outcome of a processing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
)

// Channel tells whether an event came over the live equipment link.
type Channel string

const (
	ChannelOnline  Channel = "ONLINE"
	ChannelOffline Channel = "OFFLINE"
)

// Transaction is an immutable cassette transaction audit record.
type Transaction struct {
	ID          string    `json:"id"`
	CassetteID  string    `json:"cst_id"`
	UserID      string    `json:"user_id"`
	MessageName string    `json:"message_name"`
	Action      string    `json:"action"`
	Outcome     Outcome   `json:"outcome"`
	Location    string    `json:"location,omitempty"`
	Channel     Channel   `json:"channel"`
	Timestamp   time.Time `json:"timestamp"`
}

// Communication logs one message exchanged with an external system.
type Communication struct {
	ID          string    `json:"id"`
	System      string    `json:"system"`
	MessageName string    `json:"message_name"`
	TID         string    `json:"tid"`
	CassetteID  string    `json:"cst_id"`
	Direction   string    `json:"direction"`
	UserID      string    `json:"user_id"`
	PayloadHash string    `json:"payload_hash,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Alarm is an operator-visible fault condition.
type Alarm struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	CassetteID string    `json:"cst_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}

// Move request priorities.
const (
	PriorityNormal   = "NORMAL"
	PriorityCritical = "CRITICAL"
)

// MoveRequest instructs the material control system to move a cassette.
type MoveRequest struct {
	Action         string    `json:"action"` // MOVE
	CassetteID     string    `json:"cst_id"`
	Destination    string    `json:"pri_dest"`
	Priority       string    `json:"priority"`
	PriorityDetail string    `json:"priority_detail"`
	UserID         string    `json:"user_id"`
	Overwrite      string    `json:"over_write"` // Y or N
	RequestedAt    time.Time `json:"requested_at"`
}
