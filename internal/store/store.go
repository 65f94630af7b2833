// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

// Repository defines the persistence capabilities of the session backend.
// All live-session mutations go through it so that accrued time survives
// process restarts and transient disconnects.
type Repository interface {
	// GetLiveSession retrieves the user's live session, or nil if none exists.
	GetLiveSession(ctx context.Context, userID string) (*domain.LiveSession, error)

	// CreateLiveSession persists a new live session. Returns
	// domain.ErrSessionAlreadyActive if the user already has one.
	CreateLiveSession(ctx context.Context, session *domain.LiveSession) error

	// SaveLiveSession persists the current state of an existing live session.
	SaveLiveSession(ctx context.Context, session *domain.LiveSession) error

	// DeleteLiveSession removes the user's live session, if any.
	DeleteLiveSession(ctx context.Context, userID string) error

	// CreateHistoryRecord appends a finalized session to the history.
	CreateHistoryRecord(ctx context.Context, record domain.HistoryRecord) error

	// ListHistoryRecords returns the user's history, newest first.
	ListHistoryRecords(ctx context.Context, userID string) ([]domain.HistoryRecord, error)

	// GetProfile retrieves a user's progression profile, or nil if none exists.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// UpsertProfile creates or updates a user's progression profile.
	UpsertProfile(ctx context.Context, profile *domain.UserProfile) error

	// CreateScheduledTask persists a delayed task for later delivery.
	CreateScheduledTask(ctx context.Context, task domain.ScheduledTask) error

	// DueScheduledTasks returns tasks whose run_at is at or before now.
	DueScheduledTasks(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error)

	// DeleteScheduledTask removes a delivered task.
	DeleteScheduledTask(ctx context.Context, taskID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
