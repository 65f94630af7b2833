package domain

import "time"

// ScheduledTask is a durable delayed-task record. Tasks survive process
// restarts and are delivered at least once, possibly late.
type ScheduledTask struct {
	ID        string
	Kind      string
	UserID    string
	RunAt     time.Time
	CreatedAt time.Time
}
