// Package alarm records operator-visible fault conditions.
package alarm

import (
	"context"
	"time"

	"github.com/fentz26/icad/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Alarm kinds raised by the inspection workflow.
const (
	KindModeIsManual     = "ICA_MODE_IS_MANUAL"
	KindCstIDNotExist    = "CST_ID_NOT_EXIST"
	KindCstNotAtICAPort  = "CST_NOT_AT_ICA_PORT"
	KindMoveDispatchFail = "MOVE_DISPATCH_FAIL"
	KindInternalError    = "ICA_INTERNAL_ERROR"
)

// Store is the persistence needed by the sink.
type Store interface {
	InsertAlarm(ctx context.Context, a *models.Alarm) error
}

// Sink persists and logs alarms. Raise never fails the caller.
type Sink struct {
	store  Store
	logger *zap.Logger
}

// NewSink creates a new alarm sink. A nil store only logs.
func NewSink(s Store, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: s, logger: logger.Named("alarm")}
}

// Raise records an alarm. Persistence failures are logged and swallowed.
func (s *Sink) Raise(ctx context.Context, kind, cassetteID, actor, message string) {
	a := &models.Alarm{
		ID:         uuid.New().String(),
		Kind:       kind,
		CassetteID: cassetteID,
		UserID:     actor,
		Message:    message,
		RaisedAt:   time.Now().UTC(),
	}

	s.logger.Warn("alarm raised",
		zap.String("kind", kind),
		zap.String("cst_id", cassetteID),
		zap.String("user_id", actor),
		zap.String("message", message),
	)

	if s.store == nil {
		return
	}
	if err := s.store.InsertAlarm(ctx, a); err != nil {
		s.logger.Error("persist alarm failed", zap.String("kind", kind), zap.String("cst_id", cassetteID), zap.Error(err))
	}
}
