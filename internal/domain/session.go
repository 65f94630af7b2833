// Package domain contains core domain types for the Seika backend.
package domain

import (
	"time"
)

// Mode selects how a live session structures its time.
type Mode string

const (
	ModePomodoro Mode = "pomodoro"
	ModeFree     Mode = "free"
)

// Valid reports whether the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModePomodoro || m == ModeFree
}

// Phase is the current activity category of a live session. Pause is not a
// phase: it is an independent open interval layered on top of the phase, so
// that paused time is never double-accounted.
type Phase string

const (
	PhaseFocus      Phase = "focus"
	PhaseShortBreak Phase = "shortBreak"
	PhaseLongBreak  Phase = "longBreak"
	PhaseFree       Phase = "free"
)

// IsBreak reports whether the phase is one of the break variants.
func (p Phase) IsBreak() bool {
	return p == PhaseShortBreak || p == PhaseLongBreak
}

// Elapsed returns to − from, or ErrInvalidInterval when the clock ran
// backwards between the two readings.
func Elapsed(from, to time.Time) (time.Duration, error) {
	d := to.Sub(from)
	if d < 0 {
		return 0, ErrInvalidInterval
	}
	return d, nil
}

// elapsedOrZero clamps a skewed interval to zero so accumulators stay
// monotonically non-decreasing.
func elapsedOrZero(from, to time.Time) time.Duration {
	d, err := Elapsed(from, to)
	if err != nil {
		return 0
	}
	return d
}

// LiveSession is the in-progress timer state for one user. At most one exists
// per user, and it is mutated only under the owner's per-user serialization.
type LiveSession struct {
	ID            string
	UserID        string
	Mode          Mode
	Phase         Phase
	PomodoroCount int
	StartTime     time.Time
	IsConnected   bool

	LastDisconnectedAt *time.Time

	// At most one of the two markers below is open at any time. Opening
	// either one folds and closes the other.
	LastBreakStartedAt       *time.Time
	AccumulatedBreakDuration time.Duration
	LastPauseStartedAt       *time.Time
	AccumulatedPauseDuration time.Duration
}

// BasePhase is the phase a session returns to when no break is open.
func (s *LiveSession) BasePhase() Phase {
	if s.Mode == ModeFree {
		return PhaseFree
	}
	return PhaseFocus
}

// IsPaused reports whether a pause interval is currently open.
func (s *LiveSession) IsPaused() bool {
	return s.LastPauseStartedAt != nil
}

// IsOnBreak reports whether a break interval is currently open.
func (s *LiveSession) IsOnBreak() bool {
	return s.LastBreakStartedAt != nil
}

// OpenPause opens the pause marker. An open break is folded and closed first;
// re-opening while already paused is a no-op.
func (s *LiveSession) OpenPause(now time.Time) {
	s.CloseBreak(now)
	if s.LastPauseStartedAt != nil {
		return
	}
	t := now
	s.LastPauseStartedAt = &t
}

// ClosePause folds the elapsed pause time into the accumulator and clears the
// marker. Closing an already-closed marker is a no-op.
func (s *LiveSession) ClosePause(now time.Time) {
	if s.LastPauseStartedAt == nil {
		return
	}
	s.AccumulatedPauseDuration += elapsedOrZero(*s.LastPauseStartedAt, now)
	s.LastPauseStartedAt = nil
}

// OpenBreak opens the break marker. An open pause is folded and closed first;
// re-opening while already on break is a no-op.
func (s *LiveSession) OpenBreak(now time.Time) {
	s.ClosePause(now)
	if s.LastBreakStartedAt != nil {
		return
	}
	t := now
	s.LastBreakStartedAt = &t
}

// CloseBreak folds the elapsed break time into the accumulator and clears the
// marker. Closing an already-closed marker is a no-op.
func (s *LiveSession) CloseBreak(now time.Time) {
	if s.LastBreakStartedAt == nil {
		return
	}
	s.AccumulatedBreakDuration += elapsedOrZero(*s.LastBreakStartedAt, now)
	s.LastBreakStartedAt = nil
}

// CloseAllMarkers folds any open pause or break interval, leaving the session
// ready for finalization.
func (s *LiveSession) CloseAllMarkers(now time.Time) {
	s.ClosePause(now)
	s.CloseBreak(now)
}
