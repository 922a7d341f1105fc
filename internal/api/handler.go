// Package api provides the REST handlers that sit beside the game socket.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/whackamole/internal/domain"
	"github.com/ashureev/whackamole/internal/game"
	"github.com/ashureev/whackamole/internal/store"
	"github.com/ashureev/whackamole/internal/ws"
)

// Handler serves the read-only REST endpoints.
type Handler struct {
	repo      store.Repository
	rounds    *game.Registry
	hub       *ws.Hub
	profiles  game.Profiles
	startedAt time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, rounds *game.Registry, hub *ws.Hub, profiles game.Profiles) *Handler {
	return &Handler{
		repo:      repo,
		rounds:    rounds,
		hub:       hub,
		profiles:  profiles,
		startedAt: time.Now(),
	}
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

// RegisterRoutes registers the REST routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/difficulties", h.GetDifficulties)
		r.Get("/scores", h.GetScores)
		r.Get("/status", h.GetStatus)
	})
}

// difficultyInfo is one preset as shown to the frontend. Times are seconds.
type difficultyInfo struct {
	Name          string  `json:"name"`
	MoleTimeout   float64 `json:"mole_timeout"`
	MinDelay      float64 `json:"min_delay"`
	MaxDelay      float64 `json:"max_delay"`
	RoundDuration float64 `json:"round_duration"`
}

// GetDifficulties lists the available presets in display order.
func (h *Handler) GetDifficulties(w http.ResponseWriter, r *http.Request) {
	out := make([]difficultyInfo, 0, len(h.profiles))
	for _, d := range game.AllDifficulties() {
		p, ok := h.profiles[d]
		if !ok {
			continue
		}
		out = append(out, difficultyInfo{
			Name:          string(d),
			MoleTimeout:   p.MoleTimeout.Seconds(),
			MinDelay:      p.MinSpawnDelay.Seconds(),
			MaxDelay:      p.MaxSpawnDelay.Seconds(),
			RoundDuration: p.RoundDuration.Seconds(),
		})
	}
	JSON(w, http.StatusOK, out)
}

// GetScores returns the current leaderboard.
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.repo.TopScores(r.Context(), domain.TopScoreLimit)
	if err != nil {
		slog.Error("Failed to load high scores", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load high scores")
		return
	}
	JSON(w, http.StatusOK, scores)
}

// GetStatus reports live server counters.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"active_rounds":     h.rounds.Active(),
		"connected_clients": h.hub.Len(),
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
	})
}
