package store

import (
	"context"
	"time"

	"github.com/fentz26/icad/internal/models"
)

// --- System Code Operations ---

// UpsertSystemCode inserts or replaces a system code.
func (s *Store) UpsertSystemCode(ctx context.Context, c models.SystemCode) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO system_codes (category, code, sort_order) VALUES (?, ?, ?)
		 ON CONFLICT (category, code) DO UPDATE SET sort_order = excluded.sort_order`),
		c.Category, c.Code, c.SortOrder,
	)
	return wrapErr("upsert system code", err)
}

// SystemCodes returns the codes of a category in sort order.
func (s *Store) SystemCodes(ctx context.Context, category string) ([]models.SystemCode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT category, code, sort_order FROM system_codes WHERE category = ? ORDER BY sort_order, code`), category)
	if err != nil {
		return nil, wrapErr("query system codes", err)
	}
	defer rows.Close()

	var out []models.SystemCode
	for rows.Next() {
		var c models.SystemCode
		if err := rows.Scan(&c.Category, &c.Code, &c.SortOrder); err != nil {
			return nil, wrapErr("scan system code", err)
		}
		out = append(out, c)
	}
	return out, wrapErr("iterate system codes", rows.Err())
}

// --- System Status Operations ---

// SetSystemStatus inserts or replaces a status flag.
func (s *Store) SetSystemStatus(ctx context.Context, statusType, name, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO system_status (status_type, name, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (status_type, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		statusType, name, value, time.Now().UTC(),
	)
	return wrapErr("upsert system status", err)
}

// SystemStatuses returns every status row of a type.
func (s *Store) SystemStatuses(ctx context.Context, statusType string) ([]models.SystemStatus, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT status_type, name, value, updated_at FROM system_status WHERE status_type = ? ORDER BY name`), statusType)
	if err != nil {
		return nil, wrapErr("query system status", err)
	}
	defer rows.Close()

	var out []models.SystemStatus
	for rows.Next() {
		var st models.SystemStatus
		if err := rows.Scan(&st.StatusType, &st.Name, &st.Value, &st.UpdatedAt); err != nil {
			return nil, wrapErr("scan system status", err)
		}
		out = append(out, st)
	}
	return out, wrapErr("iterate system status", rows.Err())
}
