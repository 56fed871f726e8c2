package server

import (
	"errors"
)

var (
	// ErrSessionClosed is returned when sending on a closed session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrTooManySessions is returned when the session limit is reached.
	ErrTooManySessions = errors.New("server: too many sessions")

	// ErrServerClosed is returned when registering a session during shutdown.
	ErrServerClosed = errors.New("server: shutting down")
)
