package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry tracks the running round for each connected session. Sessions
// never share rounds, so entries are independent; the registry lock only
// guards the map itself.
type Registry struct {
	mu     sync.RWMutex
	rounds map[string]*Round
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rounds: make(map[string]*Round)}
}

// Put records the round for a session and returns the round it displaced,
// if any. The caller is responsible for stopping the displaced round.
func (g *Registry) Put(id string, r *Round) *Round {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.rounds[id]
	g.rounds[id] = r
	return prev
}

// Get returns the round for a session, or nil.
func (g *Registry) Get(id string) *Round {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rounds[id]
}

// Remove deletes and returns the round for a session, or nil.
func (g *Registry) Remove(id string) *Round {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.rounds[id]
	delete(g.rounds, id)
	return r
}

// Evict removes the entry for id only if it still holds r, so a stale
// cleanup cannot drop a round that already replaced it.
func (g *Registry) Evict(id string, r *Round) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := g.rounds[id]; ok && current == r {
		delete(g.rounds, id)
		return true
	}
	return false
}

// Len returns the number of registered rounds.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rounds)
}

// Active returns the number of rounds still in play.
func (g *Registry) Active() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, r := range g.rounds {
		if r.session.Running() {
			n++
		}
	}
	return n
}

// snapshot copies the entries so callers can act on them without holding
// the registry lock; Round.Stop blocks and must never run under it.
func (g *Registry) snapshot() map[string]*Round {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rounds := make(map[string]*Round, len(g.rounds))
	for id, r := range g.rounds {
		rounds[id] = r
	}
	return rounds
}

// StopAll stops every registered round and empties the registry. Used on
// shutdown so every connected player gets a terminal event.
func (g *Registry) StopAll() {
	for id, r := range g.snapshot() {
		if g.Evict(id, r) {
			r.Stop()
		}
	}
}

const janitorInterval = 30 * time.Second

// StartJanitor runs a background goroutine that sweeps the registry for
// rounds that outlived their own deadline by more than grace. Healthy
// rounds end themselves and are evicted by their owning connection; a
// reaped round means a handler leaked it.
func StartJanitor(ctx context.Context, reg *Registry, grace time.Duration) {
	ticker := time.NewTicker(janitorInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Round janitor started", "interval", janitorInterval, "grace", grace)

		for {
			select {
			case <-ticker.C:
				reapExpiredRounds(reg, grace)
			case <-ctx.Done():
				slog.Info("Round janitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func reapExpiredRounds(reg *Registry, grace time.Duration) {
	now := time.Now()
	for id, r := range reg.snapshot() {
		if !r.Expired(now, grace) {
			continue
		}
		if reg.Evict(id, r) {
			r.Stop()
			slog.Warn("Janitor reaped leaked round", "session_id", id)
		}
	}
}
