package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/seika-app/seika-server/internal/domain"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeService returns scripted results for dispatch tests.
type fakeService struct {
	sess *domain.LiveSession
	rec  *domain.HistoryRecord
	err  error

	lastMode  domain.Mode
	lastBreak domain.Phase
}

func (f *fakeService) Start(_ context.Context, _ string, mode domain.Mode) (*domain.LiveSession, error) {
	f.lastMode = mode
	return f.sess, f.err
}

func (f *fakeService) Pause(context.Context, string) (*domain.LiveSession, error) {
	return f.sess, f.err
}

func (f *fakeService) Resume(context.Context, string) (*domain.LiveSession, error) {
	return f.sess, f.err
}

func (f *fakeService) StartBreak(_ context.Context, _ string, breakType domain.Phase) (*domain.LiveSession, error) {
	f.lastBreak = breakType
	return f.sess, f.err
}

func (f *fakeService) EndBreak(context.Context, string) (*domain.LiveSession, error) {
	return f.sess, f.err
}

func (f *fakeService) End(context.Context, string) (*domain.HistoryRecord, error) {
	return f.rec, f.err
}

func newDispatchHandler(svc SessionService) *Handler {
	return NewHandler(nil, svc, nil, NewManager(), "*", true)
}

func envelope(t *testing.T, msgType string, payload interface{}) Envelope {
	t.Helper()
	env := Envelope{Type: msgType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal payload: %v", err)
		}
		env.Payload = data
	}
	return env
}

func TestDispatchStartSession(t *testing.T) {
	svc := &fakeService{sess: &domain.LiveSession{ID: "s1", Phase: domain.PhaseFocus}}
	h := newDispatchHandler(svc)

	ev := h.dispatch(context.Background(), "u1", envelope(t, MsgStartSession, map[string]string{"mode": "pomodoro"}))

	if ev.Type != EventSessionStarted {
		t.Fatalf("Expected session_started, got %s", ev.Type)
	}
	if svc.lastMode != domain.ModePomodoro {
		t.Errorf("Expected pomodoro mode forwarded, got %s", svc.lastMode)
	}
	p, ok := ev.Payload.(phasePayload)
	if !ok {
		t.Fatalf("Unexpected payload type %T", ev.Payload)
	}
	if p.Phase != "focus" || p.ID != "s1" {
		t.Errorf("Unexpected payload: %+v", p)
	}
}

func TestDispatchStartSessionExists(t *testing.T) {
	svc := &fakeService{err: domain.ErrSessionAlreadyActive}
	h := newDispatchHandler(svc)

	ev := h.dispatch(context.Background(), "u1", envelope(t, MsgStartSession, nil))

	if ev.Type != EventSessionExists {
		t.Errorf("Expected session_exists, got %s", ev.Type)
	}
}

func TestDispatchErrorsStayOnConnection(t *testing.T) {
	svc := &fakeService{err: domain.ErrNoActiveSession}
	h := newDispatchHandler(svc)

	for _, msgType := range []string{MsgPauseSession, MsgResumeSession, MsgBreakEnd, MsgEndSession} {
		ev := h.dispatch(context.Background(), "u1", envelope(t, msgType, nil))
		if ev.Type != EventError {
			t.Errorf("%s: expected error event, got %s", msgType, ev.Type)
		}
		p, ok := ev.Payload.(messagePayload)
		if !ok || p.Message == "" {
			t.Errorf("%s: expected message payload, got %#v", msgType, ev.Payload)
		}
	}
}

func TestDispatchBreakStart(t *testing.T) {
	svc := &fakeService{sess: &domain.LiveSession{ID: "s1", Phase: domain.PhaseShortBreak}}
	h := newDispatchHandler(svc)

	ev := h.dispatch(context.Background(), "u1", envelope(t, MsgBreakStart, map[string]string{"break_type": "shortBreak"}))

	if ev.Type != EventBreakStarted {
		t.Fatalf("Expected break_started, got %s", ev.Type)
	}
	if svc.lastBreak != domain.PhaseShortBreak {
		t.Errorf("Expected shortBreak forwarded, got %s", svc.lastBreak)
	}
}

func TestDispatchEndSession(t *testing.T) {
	rec := &domain.HistoryRecord{
		ID:         "r1",
		UserID:     "u1",
		StartTime:  t0,
		EndTime:    t0.Add(150 * time.Second),
		TotalTime:  150 * time.Second,
		PauseTime:  30 * time.Second,
		ActiveTime: 120 * time.Second,
	}
	h := newDispatchHandler(&fakeService{rec: rec})

	ev := h.dispatch(context.Background(), "u1", envelope(t, MsgEndSession, nil))

	if ev.Type != EventSessionEnded {
		t.Fatalf("Expected session_ended, got %s", ev.Type)
	}
	p, ok := ev.Payload.(sessionEndedPayload)
	if !ok {
		t.Fatalf("Unexpected payload type %T", ev.Payload)
	}
	if p.ID != "r1" {
		t.Errorf("Expected record ID r1, got %s", p.ID)
	}
	if p.Data.TotalTime != 150 || p.Data.PauseTime != 30 || p.Data.ActiveTime != 120 {
		t.Errorf("Unexpected durations: %+v", p.Data)
	}
}

func TestDispatchUnknownType(t *testing.T) {
	h := newDispatchHandler(&fakeService{})

	ev := h.dispatch(context.Background(), "u1", envelope(t, "bogus", nil))
	if ev.Type != EventError {
		t.Errorf("Expected error event, got %s", ev.Type)
	}
}

func TestReconnectedEventSnapshot(t *testing.T) {
	pausedAt := t0.Add(time.Minute)
	sess := &domain.LiveSession{
		ID:                       "s1",
		Mode:                     domain.ModePomodoro,
		Phase:                    domain.PhaseFocus,
		PomodoroCount:            3,
		StartTime:                t0,
		LastPauseStartedAt:       &pausedAt,
		AccumulatedBreakDuration: 5 * time.Minute,
	}

	ev := reconnectedEvent(sess)
	if ev.Type != EventSessionReconnected {
		t.Fatalf("Expected session_reconnected, got %s", ev.Type)
	}
	p := ev.Payload.(snapshotPayload)
	if p.PomodoroCount != 3 || p.Mode != "pomodoro" || p.Phase != "focus" {
		t.Errorf("Unexpected snapshot: %+v", p)
	}
	if p.LastPauseStartedAt == nil || !p.LastPauseStartedAt.Equal(pausedAt) {
		t.Errorf("Expected pause marker in snapshot, got %v", p.LastPauseStartedAt)
	}
	if p.AccumulatedBreakDuration != 300 {
		t.Errorf("Expected 300s break duration, got %d", p.AccumulatedBreakDuration)
	}
}
