package domain

import (
	"time"
)

// UserProfile holds the per-user progression state owned by the reward sink:
// experience points, level, and the daily work streak.
type UserProfile struct {
	UserID           string
	Username         string
	ExperiencePoints int
	Level            int
	Streak           int
	MaxStreak        int
	LastWorkedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// levelThreshold is the XP required to advance past the given level.
func levelThreshold(level int) int {
	return level * 100
}

// AddExperience grants XP and applies any level-ups the new total earns.
// Returns true if at least one level was gained.
func (u *UserProfile) AddExperience(points int) bool {
	if points <= 0 {
		return false
	}
	if u.Level < 1 {
		u.Level = 1
	}
	u.ExperiencePoints += points

	leveled := false
	for u.ExperiencePoints >= levelThreshold(u.Level) {
		u.ExperiencePoints -= levelThreshold(u.Level)
		u.Level++
		leveled = true
	}
	return leveled
}

// MarkWorked updates the daily streak for a completed session ending at now.
// Consecutive calendar days extend the streak; a gap resets it to one. A
// second session on the same day leaves the streak unchanged.
func (u *UserProfile) MarkWorked(now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)

	switch {
	case u.LastWorkedAt == nil:
		u.Streak = 1
	default:
		last := u.LastWorkedAt.UTC().Truncate(24 * time.Hour)
		switch day.Sub(last) {
		case 0:
			// Already counted today.
		case 24 * time.Hour:
			u.Streak++
		default:
			u.Streak = 1
		}
	}

	if u.Streak > u.MaxStreak {
		u.MaxStreak = u.Streak
	}
	t := now
	u.LastWorkedAt = &t
}
