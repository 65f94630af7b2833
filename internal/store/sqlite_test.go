package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestLiveSessionRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	pausedAt := start.Add(time.Minute)

	sess := &domain.LiveSession{
		ID:                       "s1",
		UserID:                   "u1",
		Mode:                     domain.ModePomodoro,
		Phase:                    domain.PhaseFocus,
		PomodoroCount:            2,
		StartTime:                start,
		IsConnected:              true,
		LastPauseStartedAt:       &pausedAt,
		AccumulatedBreakDuration: 5 * time.Minute,
	}

	if err := repo.CreateLiveSession(ctx, sess); err != nil {
		t.Fatalf("CreateLiveSession failed: %v", err)
	}

	got, err := repo.GetLiveSession(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLiveSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a session, got nil")
	}
	if got.ID != "s1" || got.Mode != domain.ModePomodoro || got.PomodoroCount != 2 {
		t.Errorf("Unexpected session: %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, got.StartTime)
	}
	if got.LastPauseStartedAt == nil || !got.LastPauseStartedAt.Equal(pausedAt) {
		t.Errorf("Expected pause marker %v, got %v", pausedAt, got.LastPauseStartedAt)
	}
	if got.AccumulatedBreakDuration != 5*time.Minute {
		t.Errorf("Expected 5m break duration, got %v", got.AccumulatedBreakDuration)
	}
}

func TestGetLiveSessionMissing(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetLiveSession(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetLiveSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}
}

func TestCreateLiveSessionDuplicate(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	sess := &domain.LiveSession{ID: "s1", UserID: "u1", Mode: domain.ModeFree, Phase: domain.PhaseFree, StartTime: time.Now()}

	if err := repo.CreateLiveSession(ctx, sess); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	dup := &domain.LiveSession{ID: "s2", UserID: "u1", Mode: domain.ModeFree, Phase: domain.PhaseFree, StartTime: time.Now()}
	if err := repo.CreateLiveSession(ctx, dup); !errors.Is(err, domain.ErrSessionAlreadyActive) {
		t.Errorf("Expected ErrSessionAlreadyActive, got %v", err)
	}
}

func TestSaveLiveSessionMissing(t *testing.T) {
	repo := newTestStore(t)
	sess := &domain.LiveSession{ID: "s1", UserID: "ghost", Mode: domain.ModeFree, Phase: domain.PhaseFree, StartTime: time.Now()}

	if err := repo.SaveLiveSession(context.Background(), sess); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("Expected ErrNoActiveSession, got %v", err)
	}
}

func TestDeleteLiveSessionIdempotent(t *testing.T) {
	repo := newTestStore(t)
	if err := repo.DeleteLiveSession(context.Background(), "nobody"); err != nil {
		t.Errorf("Delete of missing session should be a no-op, got %v", err)
	}
}

func TestHistoryRecordsNewestFirst(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new"} {
		rec := domain.HistoryRecord{
			ID:         id,
			UserID:     "u1",
			StartTime:  start,
			EndTime:    start.Add(time.Duration(i+1) * time.Hour),
			TotalTime:  time.Duration(i+1) * time.Hour,
			ActiveTime: time.Duration(i+1) * time.Hour,
		}
		if err := repo.CreateHistoryRecord(ctx, rec); err != nil {
			t.Fatalf("CreateHistoryRecord failed: %v", err)
		}
	}

	records, err := repo.ListHistoryRecords(ctx, "u1")
	if err != nil {
		t.Fatalf("ListHistoryRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "new" || records[1].ID != "old" {
		t.Errorf("Expected newest first, got %s then %s", records[0].ID, records[1].ID)
	}
	if records[0].TotalTime != 2*time.Hour {
		t.Errorf("Expected 2h total, got %v", records[0].TotalTime)
	}
}

func TestProfileUpsert(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	got, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for missing profile, got %+v", got)
	}

	profile := &domain.UserProfile{
		UserID: "u1", Username: "u1", ExperiencePoints: 40, Level: 1,
		Streak: 1, MaxStreak: 1, LastWorkedAt: &now, CreatedAt: now, UpdatedAt: now,
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	profile.ExperiencePoints = 10
	profile.Level = 2
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err = repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Level != 2 || got.ExperiencePoints != 10 {
		t.Errorf("Expected level 2 with 10 XP, got %+v", got)
	}
	if got.LastWorkedAt == nil || !got.LastWorkedAt.Equal(now) {
		t.Errorf("Expected last worked at %v, got %v", now, got.LastWorkedAt)
	}
}

func TestScheduledTasksDue(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	due := domain.ScheduledTask{ID: "t1", Kind: "session_reconcile", UserID: "u1", RunAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Minute)}
	future := domain.ScheduledTask{ID: "t2", Kind: "session_reconcile", UserID: "u2", RunAt: now.Add(time.Hour), CreatedAt: now}
	for _, task := range []domain.ScheduledTask{due, future} {
		if err := repo.CreateScheduledTask(ctx, task); err != nil {
			t.Fatalf("CreateScheduledTask failed: %v", err)
		}
	}

	tasks, err := repo.DueScheduledTasks(ctx, now)
	if err != nil {
		t.Fatalf("DueScheduledTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("Expected only t1 due, got %+v", tasks)
	}

	if err := repo.DeleteScheduledTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteScheduledTask failed: %v", err)
	}
	tasks, err = repo.DueScheduledTasks(ctx, now)
	if err != nil {
		t.Fatalf("DueScheduledTasks failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no due tasks after delete, got %+v", tasks)
	}
}
