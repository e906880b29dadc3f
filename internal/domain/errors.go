package domain

import "errors"

var (
	// ErrUnknownDomain indicates a domain label outside the known set.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrSessionNotFound indicates the session id has no live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition indicates a session status change that the
	// state machine does not allow.
	ErrInvalidTransition = errors.New("invalid session status transition")

	// ErrHandlerNotRegistered indicates dispatch to a domain without a handler.
	ErrHandlerNotRegistered = errors.New("handler not registered")

	// ErrHandoffRejected indicates a handoff that failed validation. It is
	// advisory, not a request failure.
	ErrHandoffRejected = errors.New("handoff rejected")
)
