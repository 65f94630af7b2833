package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/seika-app/seika-server/internal/auth"
	"github.com/seika-app/seika-server/internal/domain"
)

// SessionService is the state machine surface the adapter drives.
type SessionService interface {
	Start(ctx context.Context, userID string, mode domain.Mode) (*domain.LiveSession, error)
	Pause(ctx context.Context, userID string) (*domain.LiveSession, error)
	Resume(ctx context.Context, userID string) (*domain.LiveSession, error)
	StartBreak(ctx context.Context, userID string, breakType domain.Phase) (*domain.LiveSession, error)
	EndBreak(ctx context.Context, userID string) (*domain.LiveSession, error)
	End(ctx context.Context, userID string) (*domain.HistoryRecord, error)
}

// ConnectionMonitor is the reconnection surface the adapter notifies.
type ConnectionMonitor interface {
	HandleConnect(ctx context.Context, userID string) (*domain.LiveSession, error)
	HandleDisconnect(ctx context.Context, userID string) error
}

// Handler upgrades connections to the live channel and runs the message loop.
type Handler struct {
	verifier      *auth.Verifier
	svc           SessionService
	monitor       ConnectionMonitor
	mgr           *Manager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a live channel handler.
func NewHandler(verifier *auth.Verifier, svc SessionService, monitor ConnectionMonitor, mgr *Manager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		verifier:      verifier,
		svc:           svc,
		monitor:       monitor,
		mgr:           mgr,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "channel closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// Authentication failure is terminal for the connection: tell the
	// client why, then close without creating any state.
	userID, err := h.verifier.UserIDFromToken(auth.TokenFromRequest(r))
	if err != nil {
		slog.Warn("Unauthenticated live channel attempt", "ip", r.RemoteAddr)
		_ = h.writeEvent(ws, Event{
			Type:    EventAnonymousUser,
			Payload: messagePayload{Message: "authentication required"},
		})
		_ = ws.Close(websocket.StatusPolicyViolation, "unauthenticated")
		return
	}

	slog.Info("Live channel connected", "user_id", userID, "ip", r.RemoteAddr)

	h.mgr.Register(userID, ws)
	defer func() {
		// Only the connection that is still current owns the disconnect;
		// a replaced connection leaving must not mark the user offline.
		if !h.mgr.Unregister(userID, ws) {
			return
		}
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.monitor.HandleDisconnect(dctx, userID); err != nil {
			slog.Warn("Failed to record disconnect", "user_id", userID, "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reconnection flow runs before any message is accepted.
	sess, err := h.monitor.HandleConnect(ctx, userID)
	if err != nil {
		slog.Error("Reconnection flow failed", "user_id", userID, "error", err)
	} else if sess != nil {
		if err := h.writeEvent(ws, reconnectedEvent(sess)); err != nil {
			slog.Debug("Failed to push reconnect snapshot", "user_id", userID, "error", err)
			return
		}
	}

	h.readLoop(ctx, ws, userID)
	slog.Info("Live channel closed", "user_id", userID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Live channel origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Live channel closed by client", "user_id", userID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("Live channel read error", "user_id", userID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			if werr := h.writeEvent(ws, errorEvent(fmt.Errorf("malformed message"))); werr != nil {
				return
			}
			continue
		}

		if err := h.writeEvent(ws, h.dispatch(ctx, userID, env)); err != nil {
			slog.Debug("Live channel write error", "user_id", userID, "error", err)
			return
		}
	}
}

// dispatch maps one inbound message onto a state-machine operation and the
// resulting outbound event. Precondition violations become error events; the
// connection itself is never torn down for them.
func (h *Handler) dispatch(ctx context.Context, userID string, env Envelope) Event {
	switch env.Type {
	case MsgStartSession:
		var p startPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return errorEvent(fmt.Errorf("malformed payload"))
			}
		}
		sess, err := h.svc.Start(ctx, userID, domain.Mode(p.Mode))
		if errors.Is(err, domain.ErrSessionAlreadyActive) {
			return Event{Type: EventSessionExists, Payload: messagePayload{Message: err.Error()}}
		}
		if err != nil {
			return errorEvent(err)
		}
		return Event{Type: EventSessionStarted, Payload: phasePayload{Phase: string(sess.Phase), ID: sess.ID}}

	case MsgPauseSession:
		sess, err := h.svc.Pause(ctx, userID)
		if err != nil {
			return errorEvent(err)
		}
		return Event{Type: EventSessionPaused, Payload: idPayload{ID: sess.ID}}

	case MsgResumeSession:
		sess, err := h.svc.Resume(ctx, userID)
		if err != nil {
			return errorEvent(err)
		}
		return Event{Type: EventSessionResumed, Payload: idPayload{ID: sess.ID}}

	case MsgBreakStart:
		var p breakStartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return errorEvent(fmt.Errorf("malformed payload"))
		}
		sess, err := h.svc.StartBreak(ctx, userID, domain.Phase(p.BreakType))
		if err != nil {
			return errorEvent(err)
		}
		return Event{Type: EventBreakStarted, Payload: phasePayload{Phase: string(sess.Phase), ID: sess.ID}}

	case MsgBreakEnd:
		sess, err := h.svc.EndBreak(ctx, userID)
		if err != nil {
			return errorEvent(err)
		}
		return Event{Type: EventBreakEnded, Payload: phasePayload{Phase: string(sess.Phase), ID: sess.ID}}

	case MsgEndSession:
		rec, err := h.svc.End(ctx, userID)
		if err != nil {
			return errorEvent(err)
		}
		return endedEvent(rec)

	default:
		return errorEvent(fmt.Errorf("unknown message type %q", env.Type))
	}
}

func (h *Handler) writeEvent(ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
