package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/icad/internal/models"
	"github.com/google/uuid"
)

const cassetteColumns = `cst_id, cycle_id, location, port_name, reg_status, ica_result, ica_req, clean_req,
	return_type, qty_type, damage, qa_hold, unload_rqst, dimension, capacity, updated_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCassette(row rowScanner) (*models.Cassette, error) {
	c := &models.Cassette{}
	var icaReq, cleanReq string
	err := row.Scan(&c.ID, &c.CycleID, &c.Location, &c.PortName, &c.RegStatus, &c.ICAResult, &icaReq, &cleanReq,
		&c.ReturnType, &c.QtyType, &c.Damage, &c.QAHold, &c.UnloadRequest, &c.Dimension, &c.Capacity, &c.UpdatedBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ICARequired = isY(icaReq)
	c.CleanRequired = isY(cleanReq)
	return c, nil
}

// --- Cassette Operations ---

// CreateCassette inserts a cassette. Cassettes normally arrive through the
// receiving flow; this is used by seeding and tests.
func (s *Store) CreateCassette(ctx context.Context, c *models.Cassette) error {
	now := time.Now().UTC()
	if c.RegStatus == "" {
		c.RegStatus = models.RegStatusUnregistered
	}
	if c.UnloadRequest == "" {
		c.UnloadRequest = models.ModeAuto
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO cassettes (`+cassetteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.CycleID, c.Location, c.PortName, c.RegStatus, c.ICAResult, yn(c.ICARequired), yn(c.CleanRequired),
		c.ReturnType, c.QtyType, c.Damage, c.QAHold, c.UnloadRequest, c.Dimension, c.Capacity, c.UpdatedBy,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrapErr("insert cassette", err)
	}
	return nil
}

// GetCassette retrieves a cassette by ID. It returns nil, nil when absent.
func (s *Store) GetCassette(ctx context.Context, id string) (*models.Cassette, error) {
	c, err := scanCassette(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+cassetteColumns+` FROM cassettes WHERE cst_id = ?`), id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("query cassette", err)
	}
	return c, nil
}

// ListCassettes returns cassettes ordered by ID, optionally filtered by location.
func (s *Store) ListCassettes(ctx context.Context, location string) ([]models.Cassette, error) {
	query := `SELECT ` + cassetteColumns + ` FROM cassettes`
	var args []any
	if location != "" {
		query += ` WHERE location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY cst_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrapErr("query cassettes", err)
	}
	defer rows.Close()

	var out []models.Cassette
	for rows.Next() {
		c, err := scanCassette(rows)
		if err != nil {
			return nil, wrapErr("scan cassette", err)
		}
		out = append(out, *c)
	}
	return out, wrapErr("iterate cassettes", rows.Err())
}

// UpdateCassette is the commit-or-rollback unit for cassette mutations.
//
// It locks the cassette, reads it inside a transaction (FOR UPDATE on
// postgres), applies fn and saves the result. If fn or any statement fails,
// the unit rolls back and the error is returned unchanged for fn errors.
// Units committed earlier are not affected.
func (s *Store) UpdateCassette(ctx context.Context, id string, fn func(*models.Cassette) error) (*models.Cassette, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + cassetteColumns + ` FROM cassettes WHERE cst_id = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	c, err := scanCassette(tx.QueryRowContext(ctx, s.rebind(query), id))
	if isNoRows(err) {
		return nil, ErrCassetteNotFound
	}
	if err != nil {
		return nil, wrapErr("query cassette", err)
	}

	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, s.rebind(
		`UPDATE cassettes SET cycle_id = ?, location = ?, port_name = ?, reg_status = ?, ica_result = ?, ica_req = ?,
		 clean_req = ?, return_type = ?, qty_type = ?, damage = ?, qa_hold = ?, unload_rqst = ?, dimension = ?,
		 capacity = ?, updated_by = ?, updated_at = ? WHERE cst_id = ?`),
		c.CycleID, c.Location, c.PortName, c.RegStatus, c.ICAResult, yn(c.ICARequired),
		yn(c.CleanRequired), c.ReturnType, c.QtyType, c.Damage, c.QAHold, c.UnloadRequest, c.Dimension,
		c.Capacity, c.UpdatedBy, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return nil, wrapErr("update cassette", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("commit transaction", err)
	}
	return c, nil
}

// --- Ship/Recv Operations ---

// CreateShipRecv inserts a shipment or receive record.
func (s *Store) CreateShipRecv(ctx context.Context, cstID, cycleID string, kind models.ShipRecvKind, returnType string) (*models.ShipRecv, error) {
	rec := &models.ShipRecv{
		ID:         uuid.New().String(),
		CassetteID: cstID,
		CycleID:    cycleID,
		Kind:       kind,
		ReturnType: returnType,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO ship_recv (id, cst_id, cycle_id, kind, return_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.CassetteID, rec.CycleID, rec.Kind, rec.ReturnType, rec.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("insert ship_recv", err)
	}
	return rec, nil
}

// LastShipRecv returns the most recent record of kind for a cassette cycle,
// or nil, nil when there is none.
func (s *Store) LastShipRecv(ctx context.Context, cstID, cycleID string, kind models.ShipRecvKind) (*models.ShipRecv, error) {
	rec := &models.ShipRecv{}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, cst_id, cycle_id, kind, return_type, created_at FROM ship_recv
		 WHERE cst_id = ? AND cycle_id = ? AND kind = ? ORDER BY created_at DESC LIMIT 1`),
		cstID, cycleID, kind,
	).Scan(&rec.ID, &rec.CassetteID, &rec.CycleID, &rec.Kind, &rec.ReturnType, &rec.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("query ship_recv", err)
	}
	return rec, nil
}

// UpdateShipRecvReturnType sets the return type of a ship/recv record.
func (s *Store) UpdateShipRecvReturnType(ctx context.Context, id, returnType string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE ship_recv SET return_type = ? WHERE id = ?`), returnType, id)
	if err != nil {
		return wrapErr("update ship_recv", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("check rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("ship_recv %s: %w", id, ErrShipRecvNotFound)
	}
	return nil
}
