package reward

import (
	"context"
	"testing"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

type profileStore struct {
	profiles map[string]*domain.UserProfile
}

func newProfileStore() *profileStore {
	return &profileStore{profiles: make(map[string]*domain.UserProfile)}
}

func (s *profileStore) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *profileStore) UpsertProfile(_ context.Context, p *domain.UserProfile) error {
	cp := *p
	s.profiles[p.UserID] = &cp
	return nil
}

func TestAddActiveTimeCreatesProfile(t *testing.T) {
	repo := newProfileStore()
	svc := NewService(repo)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	leveled, err := svc.AddActiveTime(context.Background(), "u1", 30*time.Minute)
	if err != nil {
		t.Fatalf("AddActiveTime failed: %v", err)
	}
	if leveled {
		t.Error("30 XP should not level up a fresh profile")
	}

	p := repo.profiles["u1"]
	if p == nil {
		t.Fatal("Expected profile created")
	}
	if p.ExperiencePoints != 30 {
		t.Errorf("Expected 30 XP, got %d", p.ExperiencePoints)
	}
	if p.Streak != 1 {
		t.Errorf("Expected streak 1, got %d", p.Streak)
	}
}

func TestAddActiveTimeLevelUp(t *testing.T) {
	repo := newProfileStore()
	svc := NewService(repo)

	// 120 active minutes crosses the level-1 threshold of 100 XP.
	leveled, err := svc.AddActiveTime(context.Background(), "u1", 2*time.Hour)
	if err != nil {
		t.Fatalf("AddActiveTime failed: %v", err)
	}
	if !leveled {
		t.Error("Expected level up")
	}
	if p := repo.profiles["u1"]; p.Level != 2 || p.ExperiencePoints != 20 {
		t.Errorf("Expected level 2 with 20 XP, got level %d with %d XP", p.Level, p.ExperiencePoints)
	}
}

func TestAddActiveTimeZeroDuration(t *testing.T) {
	repo := newProfileStore()
	svc := NewService(repo)

	if _, err := svc.AddActiveTime(context.Background(), "u1", 0); err != nil {
		t.Fatalf("AddActiveTime failed: %v", err)
	}
	if len(repo.profiles) != 0 {
		t.Error("Zero active time must not create a profile")
	}
}
