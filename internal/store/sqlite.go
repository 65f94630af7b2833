package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
	"github.com/seika-app/seika-server/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS live_sessions (
		user_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		mode TEXT NOT NULL,
		phase TEXT NOT NULL,
		pomodoro_count INTEGER NOT NULL DEFAULT 0,
		start_time INTEGER NOT NULL,
		is_connected INTEGER NOT NULL DEFAULT 1,
		last_disconnected_at INTEGER,
		last_break_started_at INTEGER,
		accumulated_break_ms INTEGER NOT NULL DEFAULT 0,
		last_pause_started_at INTEGER,
		accumulated_pause_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS history_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		total_ms INTEGER NOT NULL,
		break_ms INTEGER NOT NULL,
		pause_ms INTEGER NOT NULL,
		active_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user_end ON history_records(user_id, end_time DESC);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		experience_points INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		streak INTEGER NOT NULL DEFAULT 0,
		max_streak INTEGER NOT NULL DEFAULT 0,
		last_worked_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		run_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_run_at ON scheduled_tasks(run_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func unixMilliPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

const liveSessionColumns = `user_id, id, mode, phase, pomodoro_count, start_time,
	is_connected, last_disconnected_at, last_break_started_at, accumulated_break_ms,
	last_pause_started_at, accumulated_pause_ms`

func scanLiveSession(row interface{ Scan(...interface{}) error }) (*domain.LiveSession, error) {
	var sess domain.LiveSession
	var startTime int64
	var lastDisconnected, lastBreak, lastPause sql.NullInt64
	var breakMs, pauseMs int64

	err := row.Scan(
		&sess.UserID, &sess.ID, &sess.Mode, &sess.Phase, &sess.PomodoroCount, &startTime,
		&sess.IsConnected, &lastDisconnected, &lastBreak, &breakMs,
		&lastPause, &pauseMs,
	)
	if err != nil {
		return nil, err
	}

	sess.StartTime = time.UnixMilli(startTime)
	sess.LastDisconnectedAt = timePtr(lastDisconnected)
	sess.LastBreakStartedAt = timePtr(lastBreak)
	sess.AccumulatedBreakDuration = time.Duration(breakMs) * time.Millisecond
	sess.LastPauseStartedAt = timePtr(lastPause)
	sess.AccumulatedPauseDuration = time.Duration(pauseMs) * time.Millisecond

	return &sess, nil
}

// GetLiveSession retrieves the user's live session, or nil if none exists.
func (s *SQLiteStore) GetLiveSession(ctx context.Context, userID string) (*domain.LiveSession, error) {
	query := `SELECT ` + liveSessionColumns + ` FROM live_sessions WHERE user_id = ?`

	sess, err := scanLiveSession(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan live session row: %w", err)
	}
	return sess, nil
}

// CreateLiveSession persists a new live session. The user_id primary key
// enforces the zero-or-one-session-per-user rule.
func (s *SQLiteStore) CreateLiveSession(ctx context.Context, session *domain.LiveSession) error {
	query := `
	INSERT INTO live_sessions (` + liveSessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.UserID, session.ID, session.Mode, session.Phase, session.PomodoroCount,
		session.StartTime.UnixMilli(), session.IsConnected,
		unixMilliPtr(session.LastDisconnectedAt),
		unixMilliPtr(session.LastBreakStartedAt), session.AccumulatedBreakDuration.Milliseconds(),
		unixMilliPtr(session.LastPauseStartedAt), session.AccumulatedPauseDuration.Milliseconds(),
	)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return domain.ErrSessionAlreadyActive
		}
		return fmt.Errorf("insert live session: %w", err)
	}
	return nil
}

// SaveLiveSession persists the current state of an existing live session.
func (s *SQLiteStore) SaveLiveSession(ctx context.Context, session *domain.LiveSession) error {
	query := `
	UPDATE live_sessions SET
		phase = ?, pomodoro_count = ?, is_connected = ?,
		last_disconnected_at = ?, last_break_started_at = ?, accumulated_break_ms = ?,
		last_pause_started_at = ?, accumulated_pause_ms = ?
	WHERE user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		session.Phase, session.PomodoroCount, session.IsConnected,
		unixMilliPtr(session.LastDisconnectedAt),
		unixMilliPtr(session.LastBreakStartedAt), session.AccumulatedBreakDuration.Milliseconds(),
		unixMilliPtr(session.LastPauseStartedAt), session.AccumulatedPauseDuration.Milliseconds(),
		session.UserID,
	)
	if err != nil {
		return fmt.Errorf("update live session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNoActiveSession
	}
	return nil
}

// DeleteLiveSession removes the user's live session, if any.
func (s *SQLiteStore) DeleteLiveSession(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM live_sessions WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete live session: %w", err)
	}
	return nil
}

// CreateHistoryRecord appends a finalized session to the history.
func (s *SQLiteStore) CreateHistoryRecord(ctx context.Context, record domain.HistoryRecord) error {
	query := `
	INSERT INTO history_records (id, user_id, start_time, end_time, total_ms, break_ms, pause_ms, active_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.UserID,
		record.StartTime.UnixMilli(), record.EndTime.UnixMilli(),
		record.TotalTime.Milliseconds(), record.BreakTime.Milliseconds(),
		record.PauseTime.Milliseconds(), record.ActiveTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListHistoryRecords returns the user's history, newest first.
func (s *SQLiteStore) ListHistoryRecords(ctx context.Context, userID string) ([]domain.HistoryRecord, error) {
	query := `
	SELECT id, user_id, start_time, end_time, total_ms, break_ms, pause_ms, active_ms
	FROM history_records WHERE user_id = ? ORDER BY end_time DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query history records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close history rows", "error", closeErr)
		}
	}()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var startTime, endTime, totalMs, breakMs, pauseMs, activeMs int64

		if err := rows.Scan(&rec.ID, &rec.UserID, &startTime, &endTime,
			&totalMs, &breakMs, &pauseMs, &activeMs); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		rec.StartTime = time.UnixMilli(startTime)
		rec.EndTime = time.UnixMilli(endTime)
		rec.TotalTime = time.Duration(totalMs) * time.Millisecond
		rec.BreakTime = time.Duration(breakMs) * time.Millisecond
		rec.PauseTime = time.Duration(pauseMs) * time.Millisecond
		rec.ActiveTime = time.Duration(activeMs) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history records: %w", err)
	}
	return records, nil
}

// GetProfile retrieves a user's progression profile, or nil if none exists.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `
	SELECT user_id, username, experience_points, level, streak, max_streak,
	       last_worked_at, created_at, updated_at
	FROM user_profiles WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var profile domain.UserProfile
	var lastWorked sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&profile.UserID, &profile.Username, &profile.ExperiencePoints,
		&profile.Level, &profile.Streak, &profile.MaxStreak,
		&lastWorked, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	profile.LastWorkedAt = timePtr(lastWorked)
	profile.CreatedAt = time.UnixMilli(createdAt)
	profile.UpdatedAt = time.UnixMilli(updatedAt)

	return &profile, nil
}

// UpsertProfile creates or updates a user's progression profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *domain.UserProfile) error {
	query := `
	INSERT INTO user_profiles (user_id, username, experience_points, level, streak,
		max_streak, last_worked_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		experience_points = excluded.experience_points,
		level = excluded.level,
		streak = excluded.streak,
		max_streak = excluded.max_streak,
		last_worked_at = excluded.last_worked_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		profile.UserID, profile.Username, profile.ExperiencePoints,
		profile.Level, profile.Streak, profile.MaxStreak,
		unixMilliPtr(profile.LastWorkedAt),
		profile.CreatedAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// CreateScheduledTask persists a delayed task for later delivery.
func (s *SQLiteStore) CreateScheduledTask(ctx context.Context, task domain.ScheduledTask) error {
	query := `
	INSERT INTO scheduled_tasks (id, kind, user_id, run_at, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.Kind, task.UserID,
		task.RunAt.UnixMilli(), task.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled task: %w", err)
	}
	return nil
}

// DueScheduledTasks returns tasks whose run_at is at or before now.
func (s *SQLiteStore) DueScheduledTasks(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	query := `
	SELECT id, kind, user_id, run_at, created_at
	FROM scheduled_tasks WHERE run_at <= ? ORDER BY run_at`

	rows, err := s.db.QueryContext(ctx, query, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close due tasks rows", "error", closeErr)
		}
	}()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		var task domain.ScheduledTask
		var runAt, createdAt int64

		if err := rows.Scan(&task.ID, &task.Kind, &task.UserID, &runAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}

		task.RunAt = time.UnixMilli(runAt)
		task.CreatedAt = time.UnixMilli(createdAt)
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due tasks: %w", err)
	}
	return tasks, nil
}

// DeleteScheduledTask removes a delivered task.
func (s *SQLiteStore) DeleteScheduledTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete scheduled task: %w", err)
	}
	return nil
}
