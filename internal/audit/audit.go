// Package audit appends the immutable cassette transaction and
// communication records.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fentz26/icad/internal/models"
	"github.com/google/uuid"
)

// Store is the persistence needed by the audit log.
type Store interface {
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	InsertCommunication(ctx context.Context, c *models.Communication) error
}

// Log writes audit records. Records are never updated or deleted.
type Log struct {
	store Store
	now   func() time.Time
}

// NewLog creates a new audit log.
func NewLog(s Store) *Log {
	return &Log{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// TransactionEntry describes one processing attempt for a cassette.
type TransactionEntry struct {
	CassetteID  string
	UserID      string
	MessageName string
	Action      string
	Outcome     models.Outcome
	Location    string
	Channel     models.Channel
}

// AppendTransaction writes a transaction record. An empty channel is
// recorded as ONLINE.
func (l *Log) AppendTransaction(ctx context.Context, e TransactionEntry) (*models.Transaction, error) {
	if e.Channel == "" {
		e.Channel = models.ChannelOnline
	}
	t := &models.Transaction{
		ID:          uuid.New().String(),
		CassetteID:  e.CassetteID,
		UserID:      e.UserID,
		MessageName: e.MessageName,
		Action:      e.Action,
		Outcome:     e.Outcome,
		Location:    e.Location,
		Channel:     e.Channel,
		Timestamp:   l.now(),
	}
	if err := l.store.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CommunicationEntry describes one message exchanged with an external system.
type CommunicationEntry struct {
	System      string
	MessageName string
	TID         string
	CassetteID  string
	Direction   string
	UserID      string
	Payload     any
}

// Communication directions.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// AppendCommunication writes a communication record with a hash of the payload.
func (l *Log) AppendCommunication(ctx context.Context, e CommunicationEntry) (*models.Communication, error) {
	c := &models.Communication{
		ID:          uuid.New().String(),
		System:      e.System,
		MessageName: e.MessageName,
		TID:         e.TID,
		CassetteID:  e.CassetteID,
		Direction:   e.Direction,
		UserID:      e.UserID,
		Timestamp:   l.now(),
	}
	if e.Payload != nil {
		c.PayloadHash = hashPayload(e.Payload)
	}
	if err := l.store.InsertCommunication(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// OutcomeOf maps success onto the audit outcome.
func OutcomeOf(success bool) models.Outcome {
	if success {
		return models.OutcomeSuccess
	}
	return models.OutcomeFail
}

// hashPayload creates a SHA256 hash of the payload so a record can be
// matched against a captured message.
func hashPayload(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
