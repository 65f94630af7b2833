// Package reward is the sink for finalized session time: it accrues
// experience points, applies level-ups, and tracks the daily work streak.
package reward

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

// ProfileStore is the slice of the repository the reward sink needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.UserProfile) error
}

// Service implements the reward sink. One experience point per full active
// minute; the profile is created lazily on first credit.
type Service struct {
	repo ProfileStore
	now  func() time.Time
}

// NewService creates a reward service backed by the given profile store.
func NewService(repo ProfileStore) *Service {
	return &Service{repo: repo, now: time.Now}
}

// AddActiveTime credits the active duration of a finalized session to the
// user's profile. Returns whether the credit caused a level-up.
func (s *Service) AddActiveTime(ctx context.Context, userID string, active time.Duration) (bool, error) {
	if active <= 0 {
		return false, nil
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		profile = &domain.UserProfile{
			UserID:    userID,
			Username:  userID,
			Level:     1,
			CreatedAt: s.now(),
		}
	}

	points := int(active.Minutes())
	leveledUp := profile.AddExperience(points)
	profile.MarkWorked(s.now())

	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return false, fmt.Errorf("upsert profile: %w", err)
	}

	if leveledUp {
		slog.Info("User leveled up", "user_id", userID, "level", profile.Level)
	}
	return leveledUp, nil
}
