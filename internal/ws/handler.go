// Package ws serves the game over a WebSocket endpoint. Each connection
// owns at most one running round; gameplay events stream back over the
// same socket that carries the player's commands.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/whackamole/internal/domain"
	"github.com/ashureev/whackamole/internal/game"
	"github.com/ashureev/whackamole/internal/store"
)

// Handler upgrades HTTP requests to game connections and dispatches
// client messages.
type Handler struct {
	rounds        *game.Registry
	hub           *Hub
	profiles      game.Profiles
	repo          store.Repository
	tick          time.Duration
	allowedOrigin string
	isDev         bool
	now           func() time.Time
}

// NewHandler creates a new game connection handler.
func NewHandler(rounds *game.Registry, hub *Hub, profiles game.Profiles, repo store.Repository, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		rounds:        rounds,
		hub:           hub,
		profiles:      profiles,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		now:           time.Now,
	}
}

// SetTick overrides the round timer cadence.
func (h *Handler) SetTick(d time.Duration) {
	h.tick = d
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	sessionID := uuid.NewString()
	slog.Info("Client connected", "session_id", sessionID, "ip", r.RemoteAddr)

	c := newClient(sessionID, conn)
	h.hub.register(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var pumpWg sync.WaitGroup
	pumpWg.Add(1)
	go func() {
		defer pumpWg.Done()
		c.writePump(ctx)
	}()

	h.sendMessage(c, TypeConnected, ConnectedPayload{SessionID: sessionID})

	h.readLoop(ctx, c)

	// Disconnect implies stop: tear down any round this client owns.
	if round := h.rounds.Remove(sessionID); round != nil {
		round.Abandon()
	}
	h.hub.unregister(c)
	c.close()
	pumpWg.Wait()

	if err := conn.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
		slog.Debug("Failed to close websocket", "error", err, "session_id", sessionID)
	}
	slog.Info("Client disconnected", "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "session_id", c.id)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", c.id)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "malformed message")
			continue
		}
		h.dispatch(ctx, c, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, msg Message) {
	switch msg.Type {
	case TypeStartGame:
		h.handleStartGame(ctx, c, msg.Payload)
	case TypeWhack:
		h.handleWhack(c, msg.Payload)
	case TypeStopGame:
		h.handleStopGame(c)
	case TypeGetHighScores:
		h.handleGetHighScores(ctx, c)
	case TypeSubmitScore:
		h.handleSubmitScore(ctx, c, msg.Payload)
	case TypePing:
		h.sendMessage(c, TypePong, nil)
	default:
		h.sendError(c, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) handleStartGame(ctx context.Context, c *client, payload json.RawMessage) {
	var req StartGamePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			h.sendError(c, "malformed start_game payload")
			return
		}
	}

	name := req.Difficulty
	if name == "" {
		name = string(game.DifficultyMedium)
	}
	difficulty, profile, err := h.profiles.Get(name)
	if err != nil {
		h.sendError(c, fmt.Sprintf("unknown difficulty %q", req.Difficulty))
		return
	}

	// A new round silently replaces whatever the client had running.
	if prev := h.rounds.Remove(c.id); prev != nil {
		prev.Abandon()
	}

	opts := []game.Option{game.WithNow(h.now)}
	if h.tick > 0 {
		opts = append(opts, game.WithTick(h.tick))
	}
	round := game.NewRound(c.id, difficulty, profile, notifier{c}, opts...)
	round.Start(ctx)
	if displaced := h.rounds.Put(c.id, round); displaced != nil {
		displaced.Abandon()
	}

	// Drop the registry entry once the round finishes on its own.
	go func() {
		<-round.Done()
		h.rounds.Evict(c.id, round)
	}()

	slog.Info("Round started for client", "session_id", c.id, "difficulty", difficulty)
}

func (h *Handler) handleWhack(c *client, payload json.RawMessage) {
	var req WhackPayload
	if err := json.Unmarshal(payload, &req); err != nil || !game.ValidSlot(req.Hole) {
		h.sendMessage(c, string(game.EventWhackResult), game.WhackResultPayload{
			Error: "Invalid hole number",
		})
		return
	}

	round := h.rounds.Get(c.id)
	if round == nil {
		h.sendMessage(c, string(game.EventWhackResult), game.WhackResultPayload{
			Error: "Game not running",
		})
		return
	}

	// A resolved attempt is reported through the round's own stream;
	// only a round that already ended needs an answer from here.
	if _, err := round.Whack(req.Hole); err != nil {
		h.sendMessage(c, string(game.EventWhackResult), game.WhackResultPayload{
			Error: "Game not running",
		})
	}
}

func (h *Handler) handleStopGame(c *client) {
	round := h.rounds.Remove(c.id)
	if round == nil {
		return
	}
	summary := round.Stop()
	slog.Info("Round stopped by client", "session_id", c.id, "score", summary.Score, "misses", summary.Misses)
}

func (h *Handler) handleGetHighScores(ctx context.Context, c *client) {
	scores, err := h.repo.TopScores(ctx, domain.TopScoreLimit)
	if err != nil {
		slog.Error("Failed to load high scores", "error", err, "session_id", c.id)
		h.sendError(c, "high scores unavailable")
		return
	}
	h.sendMessage(c, TypeHighScoresUpdate, scores)
}

func (h *Handler) handleSubmitScore(ctx context.Context, c *client, payload json.RawMessage) {
	var req SubmitScorePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, "malformed submit_score payload")
		return
	}

	entry := domain.NewHighScore(req.Name, req.Score, req.Difficulty, h.now())
	if err := h.repo.SaveScore(ctx, entry); err != nil {
		slog.Error("Failed to save high score", "error", err, "session_id", c.id)
		h.sendError(c, "failed to save score")
		return
	}

	scores, err := h.repo.TopScores(ctx, domain.TopScoreLimit)
	if err != nil {
		slog.Error("Failed to load high scores", "error", err, "session_id", c.id)
		return
	}
	h.hub.Broadcast(TypeHighScoresUpdate, scores)
	slog.Info("High score submitted", "session_id", c.id, "name", entry.Name, "score", entry.Score)
}

func (h *Handler) sendMessage(c *client, msgType string, payload any) {
	data, err := json.Marshal(Outbound{Type: msgType, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal message", "error", err, "type", msgType)
		return
	}
	if !c.enqueue(data) {
		slog.Debug("Dropped message for slow client", "type", msgType, "session_id", c.id)
	}
}

func (h *Handler) sendError(c *client, message string) {
	h.sendMessage(c, TypeError, ErrorPayload{Message: message})
}
