// Package ws implements the live channel: it maps inbound client messages
// onto session operations and session state changes onto client events.
package ws

import (
	"encoding/json"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	MsgStartSession  = "start_session"
	MsgPauseSession  = "pause_session"
	MsgBreakStart    = "break_start"
	MsgBreakEnd      = "break_end"
	MsgResumeSession = "resume_session"
	MsgEndSession    = "end_session"
)

// Outbound event types.
const (
	EventSessionStarted     = "session_started"
	EventSessionExists      = "session_exists"
	EventSessionPaused      = "session_paused"
	EventSessionResumed     = "session_resumed"
	EventBreakStarted       = "break_started"
	EventBreakEnded         = "break_ended"
	EventSessionEnded       = "session_ended"
	EventSessionReconnected = "session_reconnected"
	EventAnonymousUser      = "anonymous_user"
	EventError              = "error"
)

// Event is an outbound message before JSON encoding.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type startPayload struct {
	Mode string `json:"mode"`
}

type breakStartPayload struct {
	BreakType string `json:"break_type"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type idPayload struct {
	ID string `json:"id"`
}

type phasePayload struct {
	Phase string `json:"phase"`
	ID    string `json:"id"`
}

// historyPayload carries a finalized record to the client. Durations are
// whole seconds; the client renders them, it never re-derives them.
type historyPayload struct {
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	TotalTime  int64     `json:"totalTime"`
	BreakTime  int64     `json:"breakTime"`
	PauseTime  int64     `json:"pauseTime"`
	ActiveTime int64     `json:"activeTime"`
}

type sessionEndedPayload struct {
	Data historyPayload `json:"data"`
	ID   string         `json:"id"`
}

// snapshotPayload lets a reconnecting client resynchronize its timer display
// without re-deriving state.
type snapshotPayload struct {
	Phase                    string     `json:"phase"`
	Mode                     string     `json:"mode"`
	PomodoroCount            int        `json:"pomodoroCount"`
	StartTime                time.Time  `json:"startTime"`
	LastPauseStartedAt       *time.Time `json:"lastPauseStartedAt,omitempty"`
	LastBreakStartedAt       *time.Time `json:"lastBreakStartedAt,omitempty"`
	AccumulatedBreakDuration int64      `json:"accumulatedBreakDuration"`
	AccumulatedPauseDuration int64      `json:"accumulatedPauseDuration"`
}

func seconds(d time.Duration) int64 {
	return int64(d.Seconds())
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Payload: messagePayload{Message: err.Error()}}
}

func reconnectedEvent(sess *domain.LiveSession) Event {
	return Event{
		Type: EventSessionReconnected,
		Payload: snapshotPayload{
			Phase:                    string(sess.Phase),
			Mode:                     string(sess.Mode),
			PomodoroCount:            sess.PomodoroCount,
			StartTime:                sess.StartTime,
			LastPauseStartedAt:       sess.LastPauseStartedAt,
			LastBreakStartedAt:       sess.LastBreakStartedAt,
			AccumulatedBreakDuration: seconds(sess.AccumulatedBreakDuration),
			AccumulatedPauseDuration: seconds(sess.AccumulatedPauseDuration),
		},
	}
}

func endedEvent(rec *domain.HistoryRecord) Event {
	return Event{
		Type: EventSessionEnded,
		Payload: sessionEndedPayload{
			ID: rec.ID,
			Data: historyPayload{
				StartTime:  rec.StartTime,
				EndTime:    rec.EndTime,
				TotalTime:  seconds(rec.TotalTime),
				BreakTime:  seconds(rec.BreakTime),
				PauseTime:  seconds(rec.PauseTime),
				ActiveTime: seconds(rec.ActiveTime),
			},
		},
	}
}
