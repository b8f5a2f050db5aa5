package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInactive is returned when the session has been revoked.
	ErrSessionInactive = errors.New("session is inactive")

	// ErrSessionExpired is returned when the session is past its expiry.
	ErrSessionExpired = errors.New("session has expired")

	// ErrInsufficientSingleLimit is returned when the amount exceeds the per-payment limit.
	ErrInsufficientSingleLimit = errors.New("amount exceeds session single limit")

	// ErrInsufficientDailyLimit is returned when the amount does not fit the remaining daily quota.
	ErrInsufficientDailyLimit = errors.New("amount exceeds remaining daily limit")

	// ErrInvalidLimits is returned when limits are zero or single exceeds daily.
	ErrInvalidLimits = errors.New("invalid session limits")

	// ErrInvalidAmount is returned for zero amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSessionExists is returned when a session with the same id is already stored.
	ErrSessionExists = errors.New("session already exists")
)
