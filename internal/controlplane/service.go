// Package controlplane provides the HTTP API and service layer for icad.
package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/fentz26/icad/internal/models"
	"github.com/fentz26/icad/internal/modegate"
	"github.com/fentz26/icad/internal/scheduler"
	"github.com/fentz26/icad/internal/store"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint. It is set at link time.
var Version = "dev"

// Submitter runs events and hands back their replies.
type Submitter interface {
	Call(ctx context.Context, ev inspection.Event) (inspection.Reply, error)
	GetStats() scheduler.Stats
}

// Service provides the control plane business logic.
type Service struct {
	store  *store.Store
	modes  *modegate.Gate
	pool   Submitter
	logger *zap.Logger
}

// NewService creates a new control plane service. pool may be nil, in
// which case event submission is refused.
func NewService(s *store.Store, modes *modegate.Gate, pool Submitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  s,
		modes:  modes,
		pool:   pool,
		logger: logger.Named("controlplane"),
	}
}

// --- Event Operations ---

// SubmitResult runs an online ICA result and returns its reply.
func (s *Service) SubmitResult(ctx context.Context, ev inspection.Event) (inspection.Reply, error) {
	if s.pool == nil {
		return inspection.Reply{}, ErrSchedulerDisabled
	}
	ev.Channel = models.ChannelOnline
	return s.pool.Call(ctx, ev)
}

// --- Cassette Operations ---

// GetCassette retrieves a cassette by ID.
func (s *Service) GetCassette(ctx context.Context, id string) (*models.Cassette, error) {
	c, err := s.store.GetCassette(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCassetteNotFound
	}
	return c, nil
}

// CassetteTransactions returns the newest transactions of a cassette.
func (s *Service) CassetteTransactions(ctx context.Context, id string, limit int) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, id, limit)
}

// --- Mode Operations ---

// Mode returns the effective mode of domain.
func (s *Service) Mode(ctx context.Context, domain string) (models.Mode, error) {
	return s.modes.CurrentMode(ctx, domain)
}

// SetMode switches domain to the named mode.
func (s *Service) SetMode(ctx context.Context, domain, mode string) (models.Mode, error) {
	m, err := modegate.ParseMode(mode)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err := s.modes.SetMode(ctx, domain, m); err != nil {
		return "", err
	}
	s.logger.Info("mode changed", zap.String("domain", domain), zap.String("mode", string(m)))
	return m, nil
}

// --- Alarm Operations ---

// Alarms returns the newest alarms.
func (s *Service) Alarms(ctx context.Context, limit int) ([]models.Alarm, error) {
	return s.store.ListAlarms(ctx, limit)
}

// --- Health ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK        bool             `json:"ok"`
	DB        string           `json:"db"`
	Driver    string           `json:"driver"`
	Version   string           `json:"version"`
	Time      string           `json:"time"`
	Scheduler *scheduler.Stats `json:"scheduler,omitempty"`
}

// Health pings the database and snapshots the worker pool.
func (s *Service) Health(ctx context.Context) HealthResponse {
	h := HealthResponse{
		OK:      true,
		DB:      "ok",
		Driver:  s.store.Driver(),
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Ping(ctx); err != nil {
		h.OK = false
		h.DB = err.Error()
	}
	if s.pool != nil {
		stats := s.pool.GetStats()
		h.Scheduler = &stats
		if stats.Stopped {
			h.OK = false
		}
	}
	return h
}
