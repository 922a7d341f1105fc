package game

import "sync"

// EventType identifies an outbound round notification.
type EventType string

// Round event types, in the order a client typically sees them.
const (
	EventGameStarted EventType = "game_started"
	EventMoleSpawn   EventType = "mole_spawn"
	EventWhackResult EventType = "whack_result"
	EventMoleMissed  EventType = "mole_missed"
	EventTimeUpdate  EventType = "time_update"
	EventGameOver    EventType = "game_over"
	EventGameStopped EventType = "game_stopped"
)

// Terminal reports whether the event ends a round. A round emits exactly
// one terminal event and nothing after it.
func (t EventType) Terminal() bool {
	return t == EventGameOver || t == EventGameStopped
}

// Event is one outbound round notification. It marshals directly as the
// wire envelope.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// Notifier delivers round events to the connected player. Implementations
// must not block; slow consumers drop events rather than stall the loops.
type Notifier interface {
	Notify(Event)
}

// StartedPayload confirms a new round.
type StartedPayload struct {
	Duration    int     `json:"duration"`
	Difficulty  string  `json:"difficulty"`
	MoleTimeout float64 `json:"mole_timeout"`
	Message     string  `json:"message"`
}

// SpawnPayload announces a mole coming up.
type SpawnPayload struct {
	Hole          int     `json:"hole"`
	Timeout       float64 `json:"timeout"`
	TimeRemaining float64 `json:"time_remaining"`
}

// WhackResultPayload answers a whack attempt.
type WhackResultPayload struct {
	Success       bool    `json:"success"`
	Hole          int     `json:"hole,omitempty"`
	ActiveMole    int     `json:"active_mole,omitempty"`
	Score         int     `json:"score"`
	Misses        int     `json:"misses"`
	ReactionTime  float64 `json:"reaction_time,omitempty"`
	TimeRemaining float64 `json:"time_remaining"`
	Error         string  `json:"error,omitempty"`
}

// MissedPayload announces a mole that timed out.
type MissedPayload struct {
	Hole          int     `json:"hole"`
	Score         int     `json:"score"`
	Misses        int     `json:"misses"`
	TimeRemaining float64 `json:"time_remaining"`
}

// TimePayload is a round clock tick.
type TimePayload struct {
	TimeRemaining float64 `json:"time_remaining"`
	Elapsed       float64 `json:"elapsed"`
}

// OverPayload carries the final counters of a finished round.
type OverPayload struct {
	Score         int `json:"score"`
	Misses        int `json:"misses"`
	TotalAttempts int `json:"total_attempts"`
}

// StoppedPayload carries the counters of a player-stopped round.
type StoppedPayload struct {
	Score  int `json:"score"`
	Misses int `json:"misses"`
}

// emitter serializes event delivery for one round and goes silent once a
// terminal event has passed through. The loops and the whack path emit
// outside the session lock, so without this gate a mole_spawn that lost
// the scheduler race could land on the wire after game_over.
type emitter struct {
	mu     sync.Mutex
	sink   Notifier
	silent bool
}

func newEmitter(sink Notifier) *emitter {
	return &emitter{sink: sink}
}

func (e *emitter) emit(typ EventType, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.silent {
		return
	}
	if typ.Terminal() {
		e.silent = true
	}
	e.sink.Notify(Event{Type: typ, Payload: payload})
}

// silence drops all further events without emitting anything.
func (e *emitter) silence() {
	e.mu.Lock()
	e.silent = true
	e.mu.Unlock()
}
