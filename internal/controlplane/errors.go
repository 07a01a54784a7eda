package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrCassetteNotFound  = errors.New("cassette not found")
	ErrInvalidMode       = errors.New("invalid mode")
	ErrSchedulerDisabled = errors.New("event processing unavailable")
)
