// Package api provides the HTTP read surface: session history and profile.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/seika-app/seika-server/internal/auth"
	"github.com/seika-app/seika-server/internal/store"
)

// Handler serves the authenticated REST endpoints.
type Handler struct {
	repo store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the read endpoints on the router. The caller is
// expected to wrap them in the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/history", h.GetHistory)
	r.Get("/api/profile", h.GetProfile)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type historyItem struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	TotalTime  int64     `json:"totalTime"`
	BreakTime  int64     `json:"breakTime"`
	PauseTime  int64     `json:"pauseTime"`
	ActiveTime int64     `json:"activeTime"`
}

// GetHistory returns the caller's finalized sessions, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	records, err := h.repo.ListHistoryRecords(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItem{
			ID:         rec.ID,
			StartTime:  rec.StartTime,
			EndTime:    rec.EndTime,
			TotalTime:  int64(rec.TotalTime.Seconds()),
			BreakTime:  int64(rec.BreakTime.Seconds()),
			PauseTime:  int64(rec.PauseTime.Seconds()),
			ActiveTime: int64(rec.ActiveTime.Seconds()),
		})
	}

	JSON(w, http.StatusOK, map[string]interface{}{"sessions": items})
}

type profileResponse struct {
	UserID           string `json:"userId"`
	Username         string `json:"username"`
	ExperiencePoints int    `json:"experiencePoints"`
	Level            int    `json:"level"`
	Streak           int    `json:"streak"`
	MaxStreak        int    `json:"maxStreak"`
}

// GetProfile returns the caller's progression summary. A user who has never
// finished a session gets a level-1 zero profile rather than a 404.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	profile, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	resp := profileResponse{UserID: userID, Username: userID, Level: 1}
	if profile != nil {
		resp = profileResponse{
			UserID:           profile.UserID,
			Username:         profile.Username,
			ExperiencePoints: profile.ExperiencePoints,
			Level:            profile.Level,
			Streak:           profile.Streak,
			MaxStreak:        profile.MaxStreak,
		}
	}
	JSON(w, http.StatusOK, resp)
}
