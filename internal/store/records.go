package store

import (
	"context"

	"github.com/fentz26/icad/internal/models"
)

// --- Transaction Audit Operations ---

// InsertTransaction appends a cassette transaction record.
func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO cst_transactions (id, cst_id, user_id, message_name, action, outcome, location, channel, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.CassetteID, t.UserID, t.MessageName, t.Action, t.Outcome, t.Location, t.Channel, t.Timestamp,
	)
	return wrapErr("insert transaction", err)
}

// ListTransactions returns transaction records for a cassette, oldest first.
// An empty cstID lists every cassette, newest first, up to limit.
func (s *Store) ListTransactions(ctx context.Context, cstID string, limit int) ([]models.Transaction, error) {
	query := `SELECT id, cst_id, user_id, message_name, action, outcome, location, channel, timestamp FROM cst_transactions`
	var args []any
	if cstID != "" {
		query += ` WHERE cst_id = ? ORDER BY timestamp ASC`
		args = append(args, cstID)
	} else {
		query += ` ORDER BY timestamp DESC`
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrapErr("query transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.CassetteID, &t.UserID, &t.MessageName, &t.Action, &t.Outcome, &t.Location, &t.Channel, &t.Timestamp); err != nil {
			return nil, wrapErr("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, wrapErr("iterate transactions", rows.Err())
}

// --- Communication Operations ---

// InsertCommunication appends a communication record.
func (s *Store) InsertCommunication(ctx context.Context, c *models.Communication) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO communications (id, system, message_name, tid, cst_id, direction, user_id, payload_hash, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.System, c.MessageName, c.TID, c.CassetteID, c.Direction, c.UserID, c.PayloadHash, c.Timestamp,
	)
	return wrapErr("insert communication", err)
}

// ListCommunications returns communication records for a cassette, oldest first.
func (s *Store) ListCommunications(ctx context.Context, cstID string) ([]models.Communication, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, system, message_name, tid, cst_id, direction, user_id, payload_hash, timestamp
		 FROM communications WHERE cst_id = ? ORDER BY timestamp ASC`), cstID)
	if err != nil {
		return nil, wrapErr("query communications", err)
	}
	defer rows.Close()

	var out []models.Communication
	for rows.Next() {
		var c models.Communication
		if err := rows.Scan(&c.ID, &c.System, &c.MessageName, &c.TID, &c.CassetteID, &c.Direction, &c.UserID, &c.PayloadHash, &c.Timestamp); err != nil {
			return nil, wrapErr("scan communication", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("iterate communications", rows.Err())
}

// --- Alarm Operations ---

// InsertAlarm appends an alarm record.
func (s *Store) InsertAlarm(ctx context.Context, a *models.Alarm) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO alarms (id, kind, cst_id, user_id, message, raised_at) VALUES (?, ?, ?, ?, ?, ?)`),
		a.ID, a.Kind, a.CassetteID, a.UserID, a.Message, a.RaisedAt,
	)
	return wrapErr("insert alarm", err)
}

// ListAlarms returns the most recent alarms, newest first.
func (s *Store) ListAlarms(ctx context.Context, limit int) ([]models.Alarm, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, kind, cst_id, user_id, message, raised_at FROM alarms ORDER BY raised_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, wrapErr("query alarms", err)
	}
	defer rows.Close()

	var out []models.Alarm
	for rows.Next() {
		var a models.Alarm
		if err := rows.Scan(&a.ID, &a.Kind, &a.CassetteID, &a.UserID, &a.Message, &a.RaisedAt); err != nil {
			return nil, wrapErr("scan alarm", err)
		}
		out = append(out, a)
	}
	return out, wrapErr("iterate alarms", rows.Err())
}
