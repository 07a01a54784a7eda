// Package modegate reports whether automatic processing is enabled for a
// subsystem. The mode lives in the system_status table: a domain is MANUAL
// when any of its rows says so.
package modegate

import (
	"context"
	"fmt"
	"strings"

	"github.com/fentz26/icad/internal/models"
)

// DomainICAAuto is the status type that switches automatic ICA processing.
const DomainICAAuto = "ICA_AUTO"

// Store is the persistence needed by the gate.
type Store interface {
	SystemStatuses(ctx context.Context, statusType string) ([]models.SystemStatus, error)
	SetSystemStatus(ctx context.Context, statusType, name, value string) error
}

// Gate reads and sets operating modes.
type Gate struct {
	store Store
}

// New creates a new mode gate.
func New(s Store) *Gate {
	return &Gate{store: s}
}

// CurrentMode returns MANUAL if any status row of domain is MANUAL, else AUTO.
func (g *Gate) CurrentMode(ctx context.Context, domain string) (models.Mode, error) {
	rows, err := g.store.SystemStatuses(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("read mode %s: %w", domain, err)
	}
	for _, r := range rows {
		if strings.EqualFold(strings.TrimSpace(r.Value), string(models.ModeManual)) {
			return models.ModeManual, nil
		}
	}
	return models.ModeAuto, nil
}

// SetMode sets the domain-wide mode row. Operator use only.
func (g *Gate) SetMode(ctx context.Context, domain string, mode models.Mode) error {
	m, err := ParseMode(string(mode))
	if err != nil {
		return err
	}
	return g.store.SetSystemStatus(ctx, domain, domain, string(m))
}

// ParseMode parses AUTO or MANUAL, case-insensitively.
func ParseMode(s string) (models.Mode, error) {
	switch models.Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case models.ModeAuto:
		return models.ModeAuto, nil
	case models.ModeManual:
		return models.ModeManual, nil
	}
	return "", fmt.Errorf("invalid mode %q: want AUTO or MANUAL", s)
}
