package ws

import "encoding/json"

// Message types accepted from clients.
const (
	TypeStartGame     = "start_game"
	TypeWhack         = "whack"
	TypeStopGame      = "stop_game"
	TypeGetHighScores = "get_high_scores"
	TypeSubmitScore   = "submit_score"
	TypePing          = "ping"
)

// Message types produced by the handler itself. Gameplay notifications
// carry the event types defined in the game package.
const (
	TypeConnected        = "connected"
	TypePong             = "pong"
	TypeError            = "error"
	TypeHighScoresUpdate = "high_scores_update"
)

// Message is the envelope for client requests. The payload stays raw
// until the type is known.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope for server messages outside gameplay events.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// StartGamePayload selects the difficulty for a new round.
type StartGamePayload struct {
	Difficulty string `json:"difficulty"`
}

// WhackPayload carries the hole a player struck.
type WhackPayload struct {
	Hole int `json:"hole"`
}

// SubmitScorePayload is a finished game offered to the leaderboard.
type SubmitScorePayload struct {
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Difficulty string `json:"difficulty"`
}

// ConnectedPayload greets a new client with its server-assigned id.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload reports a rejected request.
type ErrorPayload struct {
	Message string `json:"message"`
}
