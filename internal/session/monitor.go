package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

// TaskKindReconcile identifies the delayed reconciliation check scheduled on
// every disconnect.
const TaskKindReconcile = "session_reconcile"

// TaskScheduler is the durable delayed-task facility the monitor schedules
// reconciliation checks on. Delivery is at-least-once and possibly late; the
// check itself is idempotent, so duplicates are safe.
type TaskScheduler interface {
	Schedule(ctx context.Context, kind, userID string, runAt time.Time) error
}

// Monitor tracks the connection state of live sessions and force-ends
// sessions whose owner does not reconnect within the grace period.
type Monitor struct {
	svc   *Service
	sched TaskScheduler
	grace time.Duration
	now   func() time.Time
}

// NewMonitor creates a reconnection monitor over the given service.
func NewMonitor(svc *Service, sched TaskScheduler, grace time.Duration) *Monitor {
	return &Monitor{
		svc:   svc,
		sched: sched,
		grace: grace,
		now:   time.Now,
	}
}

// HandleConnect restores a previously disconnected session and returns its
// snapshot for client resynchronization. Returns nil if the user has no live
// session.
func (m *Monitor) HandleConnect(ctx context.Context, userID string) (*domain.LiveSession, error) {
	mu := m.svc.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.svc.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get live session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	if !sess.IsConnected {
		sess.IsConnected = true
		sess.LastDisconnectedAt = nil
		if err := m.svc.repo.SaveLiveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("save live session: %w", err)
		}
		slog.Info("Session reconnected", "user_id", userID, "session_id", sess.ID)
	}
	return sess, nil
}

// HandleDisconnect marks the session disconnected and schedules a single
// reconciliation check for the end of the grace period. Each disconnect
// schedules an independent check; superseded checks are safe no-ops.
func (m *Monitor) HandleDisconnect(ctx context.Context, userID string) error {
	mu := m.svc.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.svc.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("get live session: %w", err)
	}
	if sess == nil {
		return nil
	}

	now := m.now()
	sess.IsConnected = false
	sess.LastDisconnectedAt = &now
	if err := m.svc.repo.SaveLiveSession(ctx, sess); err != nil {
		return fmt.Errorf("save live session: %w", err)
	}

	if err := m.sched.Schedule(ctx, TaskKindReconcile, userID, now.Add(m.grace)); err != nil {
		return fmt.Errorf("schedule reconciliation check: %w", err)
	}

	slog.Info("Session disconnected, reconciliation scheduled",
		"user_id", userID,
		"session_id", sess.ID,
		"grace_period", m.grace)
	return nil
}

// Reconcile runs the delayed disconnect check. It is a no-op when the session
// is already gone, when the user reconnected first, and when the grace period
// has not elapsed yet (early fire from clock skew — not rescheduled, the next
// disconnect schedules its own check).
func (m *Monitor) Reconcile(ctx context.Context, userID string) error {
	mu := m.svc.locks.get(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.svc.repo.GetLiveSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("get live session: %w", err)
	}
	if sess == nil {
		slog.Debug("Reconciliation check: session already ended", "user_id", userID)
		return nil
	}
	if sess.IsConnected || sess.LastDisconnectedAt == nil {
		slog.Debug("Reconciliation check: user reconnected", "user_id", userID)
		return nil
	}

	elapsed := m.now().Sub(*sess.LastDisconnectedAt)
	if elapsed < m.grace {
		slog.Debug("Reconciliation check fired early, ignoring",
			"user_id", userID,
			"elapsed", elapsed,
			"grace_period", m.grace)
		return nil
	}

	slog.Info("Force-ending abandoned session",
		"user_id", userID,
		"session_id", sess.ID,
		"disconnected_for", elapsed)

	if _, err := m.svc.endLocked(ctx, userID); err != nil {
		return fmt.Errorf("force-end session: %w", err)
	}
	return nil
}
