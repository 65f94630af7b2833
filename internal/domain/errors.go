package domain

import "errors"

var (
	// ErrSessionAlreadyActive is returned when a session start is attempted
	// while the user already has a live session.
	ErrSessionAlreadyActive = errors.New("session already active")

	// ErrNoActiveSession is returned when an operation requires a live
	// session and the user has none.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidInterval is returned when an interval's end precedes its
	// start (clock skew). Callers clamp the duration to zero instead of
	// propagating a negative value.
	ErrInvalidInterval = errors.New("interval end precedes start")

	// ErrUnauthenticated is returned when a token cannot be resolved to a
	// user identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)
