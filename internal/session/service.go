// Package session implements the live session lifecycle: the phase state
// machine, duration accounting, disconnect reconciliation, and finalization
// into immutable history records.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/seika-app/seika-server/internal/domain"
	"github.com/seika-app/seika-server/internal/store"
)

// ErrInvalidBreakType is returned when a break start names a phase that is
// not one of the break variants.
var ErrInvalidBreakType = errors.New("invalid break type")

// RewardSink receives the active duration of a finalized session. The call is
// best-effort: finalization is never rolled back on sink failure.
type RewardSink interface {
	AddActiveTime(ctx context.Context, userID string, active time.Duration) (leveledUp bool, err error)
}

// Service owns the session state machine. Every operation acquires the
// per-user lock, so pause/break/end never interleave for a single user.
type Service struct {
	repo   store.Repository
	reward RewardSink
	locks  *userLocks
	now    func() time.Time
}

// NewService creates a session service backed by the given repository.
func NewService(repo store.Repository, reward RewardSink) *Service {
	return &Service{
		repo:   repo,
		reward: reward,
		locks:  newUserLocks(),
		now:    time.Now,
	}
}

// Start creates a new live session for the user. Returns
// domain.ErrSessionAlreadyActive if one already exists.
func (s *Service) Start(ctx context.Context, userID string, mode domain.Mode) (*domain.LiveSession, error) {
	if !mode.Valid() {
		mode = domain.ModePomodoro
	}

	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get live session: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrSessionAlreadyActive
	}

	sess := &domain.LiveSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		Mode:        mode,
		StartTime:   s.now(),
		IsConnected: true,
	}
	sess.Phase = sess.BasePhase()

	if err := s.repo.CreateLiveSession(ctx, sess); err != nil {
		return nil, err
	}

	slog.Info("Session started", "user_id", userID, "session_id", sess.ID, "mode", mode)
	return sess, nil
}

// Pause opens the pause marker, closing any open break first. Pausing an
// already-paused session is a no-op.
func (s *Service) Pause(ctx context.Context, userID string) (*domain.LiveSession, error) {
	return s.mutate(ctx, userID, func(sess *domain.LiveSession, now time.Time) {
		if sess.IsOnBreak() {
			sess.Phase = sess.BasePhase()
		}
		sess.OpenPause(now)
	})
}

// Resume closes the pause marker, folding the elapsed time into the pause
// accumulator. Resuming a session that is not paused is a no-op.
func (s *Service) Resume(ctx context.Context, userID string) (*domain.LiveSession, error) {
	return s.mutate(ctx, userID, func(sess *domain.LiveSession, now time.Time) {
		sess.ClosePause(now)
	})
}

// StartBreak opens the break marker and moves the session into the break
// phase, closing any open pause first. A focus phase completed in pomodoro
// mode counts toward the pomodoro tally.
func (s *Service) StartBreak(ctx context.Context, userID string, breakType domain.Phase) (*domain.LiveSession, error) {
	if !breakType.IsBreak() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBreakType, breakType)
	}

	return s.mutate(ctx, userID, func(sess *domain.LiveSession, now time.Time) {
		if sess.Mode == domain.ModePomodoro && sess.Phase == domain.PhaseFocus {
			sess.PomodoroCount++
		}
		sess.OpenBreak(now)
		sess.Phase = breakType
	})
}

// EndBreak closes the break marker and returns the session to its base
// phase. Ending a break when none is open is a no-op.
func (s *Service) EndBreak(ctx context.Context, userID string) (*domain.LiveSession, error) {
	return s.mutate(ctx, userID, func(sess *domain.LiveSession, now time.Time) {
		if !sess.IsOnBreak() {
			return
		}
		sess.CloseBreak(now)
		sess.Phase = sess.BasePhase()
	})
}

// End finalizes the session: any open interval is folded, exactly one history
// record is created, the live session is destroyed, and the active duration
// is forwarded to the reward sink. Every later operation on the user's
// session fails with domain.ErrNoActiveSession.
func (s *Service) End(ctx context.Context, userID string) (*domain.HistoryRecord, error) {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	return s.endLocked(ctx, userID)
}

// endLocked performs finalization. The caller must hold the user's lock.
func (s *Service) endLocked(ctx context.Context, userID string) (*domain.HistoryRecord, error) {
	sess, err := s.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get live session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}

	now := s.now()
	sess.CloseAllMarkers(now)
	record := domain.NewHistoryRecord(sess, now)

	// History must be durable before the live session is destroyed; the
	// reward update comes last and is best-effort.
	if err := s.repo.CreateHistoryRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("create history record: %w", err)
	}
	if err := s.repo.DeleteLiveSession(ctx, userID); err != nil {
		return nil, fmt.Errorf("delete live session: %w", err)
	}

	if s.reward != nil {
		if _, err := s.reward.AddActiveTime(ctx, userID, record.ActiveTime); err != nil {
			slog.Warn("Reward sink update failed", "user_id", userID, "error", err)
		}
	}

	slog.Info("Session ended",
		"user_id", userID,
		"session_id", sess.ID,
		"total", record.TotalTime,
		"active", record.ActiveTime)
	return &record, nil
}

// mutate runs a state transition on the user's live session under the
// per-user lock and persists the result.
func (s *Service) mutate(ctx context.Context, userID string, fn func(sess *domain.LiveSession, now time.Time)) (*domain.LiveSession, error) {
	mu := s.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get live session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}

	fn(sess, s.now())

	if err := s.repo.SaveLiveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("save live session: %w", err)
	}
	return sess, nil
}
