// Package scheduler provides a durable delayed-task facility. Tasks are
// persisted through the repository, so a scheduled check survives process
// restarts; delivery is at-least-once and possibly late.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seika-app/seika-server/internal/domain"
	"github.com/seika-app/seika-server/internal/shared"
)

// TaskStore is the slice of the repository the scheduler needs.
type TaskStore interface {
	CreateScheduledTask(ctx context.Context, task domain.ScheduledTask) error
	DueScheduledTasks(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error)
	DeleteScheduledTask(ctx context.Context, taskID string) error
}

// HandlerFunc handles a due task for one user.
type HandlerFunc func(ctx context.Context, userID string) error

// Scheduler persists delayed tasks and dispatches them to registered handlers
// from a background poll worker.
type Scheduler struct {
	repo     TaskStore
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates a scheduler polling for due tasks at the given interval.
func New(repo TaskStore, interval time.Duration) *Scheduler {
	return &Scheduler{
		repo:     repo,
		interval: interval,
		now:      time.Now,
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler binds a task kind to its handler. Must be called before
// Start.
func (s *Scheduler) RegisterHandler(kind string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = fn
}

// Schedule persists a task to run at runAt. Each call creates an independent
// task; superseded tasks are expected to be idempotent no-ops for their
// handlers.
func (s *Scheduler) Schedule(ctx context.Context, kind, userID string, runAt time.Time) error {
	task := domain.ScheduledTask{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    userID,
		RunAt:     runAt,
		CreatedAt: s.now(),
	}
	return s.repo.CreateScheduledTask(ctx, task)
}

// Start runs the background poll worker until the context is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Scheduler worker started", "interval", s.interval)

		for {
			select {
			case <-ticker.C:
				s.dispatchDue(ctx)
			case <-ctx.Done():
				slog.Info("Scheduler worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// dispatchDue runs every due task once and deletes it. Handler failures are
// logged and not retried; a missing handler kind is dropped so a stale task
// cannot wedge the queue.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	tasks, err := s.repo.DueScheduledTasks(ctx, s.now())
	if err != nil {
		slog.Error("Scheduler failed to fetch due tasks", "error", err)
		return
	}

	for _, task := range tasks {
		s.mu.RLock()
		fn, ok := s.handlers[task.Kind]
		s.mu.RUnlock()

		if !ok {
			slog.Warn("Scheduler found task with no registered handler",
				"task_id", task.ID, "kind", task.Kind)
		} else if err := fn(ctx, task.UserID); err != nil {
			slog.Error("Scheduled task handler failed",
				"task_id", task.ID,
				"kind", task.Kind,
				"user_id", task.UserID,
				"error", err)
		}

		if err := s.deleteTaskWithRetry(ctx, task.ID); err != nil {
			slog.Warn("Scheduler failed to delete task after retries",
				"task_id", task.ID, "error", err)
		}
	}
}

// deleteTaskWithRetry deletes a delivered task with exponential backoff to
// ride out SQLITE_BUSY contention.
func (s *Scheduler) deleteTaskWithRetry(ctx context.Context, taskID string) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.repo.DeleteScheduledTask(ctx, taskID)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Task delete hit database contention, retrying",
			"task_id", taskID,
			"attempt", i+1,
			"delay", delay)
		time.Sleep(delay)
	}
	return err
}
