package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("tenant not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("operation already in flight")
	ErrInvalidSpec       = errors.New("invalid tenant spec")
	ErrRemoteRejected    = errors.New("remote rejected request")
	ErrRemoteUnavailable = errors.New("remote unavailable")

	ErrProbeFailure    = errors.New("probe failed")
	ErrAllProbesFailed = errors.New("all probes failed")
)

type TransitionError struct {
	TenantID string
	From     TenantStatus
	To       TenantStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition for tenant %s: %s -> %s", e.TenantID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
