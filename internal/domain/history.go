package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryRecord is the immutable summary of a completed session. ActiveTime
// is derived exactly once here and never recomputed.
type HistoryRecord struct {
	ID         string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
	TotalTime  time.Duration
	BreakTime  time.Duration
	PauseTime  time.Duration
	ActiveTime time.Duration
}

// NewHistoryRecord finalizes a live session into a history record. The
// session's markers must already be closed; open intervals would otherwise be
// dropped from the accumulated totals.
func NewHistoryRecord(s *LiveSession, endTime time.Time) HistoryRecord {
	total := elapsedOrZero(s.StartTime, endTime)
	return HistoryRecord{
		ID:         uuid.NewString(),
		UserID:     s.UserID,
		StartTime:  s.StartTime,
		EndTime:    endTime,
		TotalTime:  total,
		BreakTime:  s.AccumulatedBreakDuration,
		PauseTime:  s.AccumulatedPauseDuration,
		ActiveTime: total - s.AccumulatedBreakDuration - s.AccumulatedPauseDuration,
	}
}
