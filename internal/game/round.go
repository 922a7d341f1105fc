package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// DefaultTick is how often the round timer samples the clock and publishes
// a time update.
const DefaultTick = 100 * time.Millisecond

// Round owns one play-through: the session state plus the spawner and
// timer goroutines that drive it. Exactly one terminal event (game_over or
// game_stopped) is emitted per round, and nothing after it.
type Round struct {
	id         string
	difficulty Difficulty
	profile    Profile
	session    *Session
	emitter    *emitter
	tick       time.Duration
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// Option tunes a Round at construction.
type Option func(*Round)

// WithTick overrides the timer period.
func WithTick(d time.Duration) Option {
	return func(r *Round) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithNow overrides the clock used for all round time arithmetic.
func WithNow(now func() time.Time) Option {
	return func(r *Round) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRound creates a round for one player. The session starts running;
// call Start to launch the loops.
func NewRound(id string, difficulty Difficulty, profile Profile, sink Notifier, opts ...Option) *Round {
	r := &Round{
		id:         id,
		difficulty: difficulty,
		profile:    profile,
		emitter:    newEmitter(sink),
		tick:       DefaultTick,
		now:        time.Now,
		cancel:     func() {},
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.session = NewSession(difficulty, profile, r.now)
	return r
}

// Start emits the start confirmation and launches the spawner and timer
// loops. The loops stop when the round ends, when Stop is called, or when
// ctx is cancelled.
func (r *Round) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.emitter.emit(EventGameStarted, StartedPayload{
		Duration:    int(r.profile.RoundDuration.Seconds()),
		Difficulty:  string(r.difficulty),
		MoleTimeout: r.profile.MoleTimeout.Seconds(),
		Message:     fmt.Sprintf("Game started on %s mode!", strings.ToUpper(string(r.difficulty))),
	})

	r.wg.Add(2)
	go r.spawnLoop(ctx)
	go r.timerLoop(ctx)
	go func() {
		r.wg.Wait()
		close(r.done)
	}()

	slog.Info("Round started",
		"session_id", r.id,
		"difficulty", r.difficulty,
		"duration", r.profile.RoundDuration)
}

// Whack resolves a player's attempt on a slot and emits the result. It
// returns ErrNotRunning once the round has ended; the caller decides how
// to answer a dead round.
func (r *Round) Whack(slot int) (HitResult, error) {
	res, err := r.session.ResolveHit(slot)
	if err != nil {
		return HitResult{}, err
	}

	payload := WhackResultPayload{
		Success:       res.Hit,
		Hole:          res.Slot,
		Score:         res.Score,
		Misses:        res.Misses,
		TimeRemaining: res.Remaining.Seconds(),
	}
	if res.Hit {
		payload.ReactionTime = res.Reaction.Seconds()
	} else {
		payload.ActiveMole = res.ActiveSlot
	}
	r.emitter.emit(EventWhackResult, payload)

	return res, nil
}

// Stop ends the round, joins both loops, and then emits game_stopped.
// The join comes first so no loop event can trail the terminal one. If the
// round already ended (timer won, or an earlier stop), nothing is emitted.
// Safe to call multiple times and from any goroutine.
func (r *Round) Stop() Summary {
	summary, stopped := r.session.Stop()
	r.cancel()
	r.wg.Wait()

	if stopped {
		r.emitter.emit(EventGameStopped, StoppedPayload{
			Score:  summary.Score,
			Misses: summary.Misses,
		})
		slog.Info("Round stopped", "session_id", r.id, "score", summary.Score, "misses", summary.Misses)
	}
	return summary
}

// Abandon tears the round down without the stop notification, for rounds
// displaced by a newer one or orphaned by a disconnect.
func (r *Round) Abandon() Summary {
	r.emitter.silence()
	return r.Stop()
}

// Done is closed once both loops have exited.
func (r *Round) Done() <-chan struct{} {
	return r.done
}

// Session exposes the round's state for snapshots.
func (r *Round) Session() *Session {
	return r.session
}

// Expired reports whether the round outlived its own deadline by more than
// grace. Healthy rounds end themselves; an expired one means its owner
// never cleaned up.
func (r *Round) Expired(now time.Time, grace time.Duration) bool {
	return now.After(r.session.Deadline().Add(grace))
}

// spawnLoop repeatedly puts a mole up, waits for it to be whacked or to
// time out, and pauses before the next one.
func (r *Round) spawnLoop(ctx context.Context) {
	defer r.wg.Done()
	for r.spawnOnce(ctx) {
	}
	slog.Debug("Spawner loop exited", "session_id", r.id)
}

// spawnOnce runs a single activate/resolve/delay cycle and reports whether
// the loop should continue. A panic inside one cycle is contained and
// logged; the loop then keeps going only while the round is still live.
func (r *Round) spawnOnce(ctx context.Context) (again bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Spawner iteration panicked", "session_id", r.id, "panic", rec)
			again = ctx.Err() == nil && r.session.Running()
		}
	}()

	if ctx.Err() != nil {
		return false
	}

	slot := rand.IntN(SlotCount) + 1
	act, err := r.session.Activate(slot)
	if err != nil {
		if errors.Is(err, ErrTargetActive) {
			slog.Warn("Spawner found a mole already up, exiting", "session_id", r.id)
		}
		return false
	}

	r.emitter.emit(EventMoleSpawn, SpawnPayload{
		Hole:          act.Slot,
		Timeout:       act.Timeout.Seconds(),
		TimeRemaining: act.Remaining.Seconds(),
	})

	expiry := time.NewTimer(act.Timeout)
	select {
	case <-act.Resolved:
		expiry.Stop()
	case <-expiry.C:
		if miss, ok := r.session.Expire(act.Slot); ok {
			r.emitter.emit(EventMoleMissed, MissedPayload{
				Hole:          miss.Slot,
				Score:         miss.Score,
				Misses:        miss.Misses,
				TimeRemaining: miss.Remaining.Seconds(),
			})
		}
	case <-ctx.Done():
		expiry.Stop()
		return false
	}

	delay := r.profile.MinSpawnDelay
	if spread := r.profile.MaxSpawnDelay - r.profile.MinSpawnDelay; spread > 0 {
		delay += rand.N(spread)
	}
	pause := time.NewTimer(delay)
	select {
	case <-pause.C:
		return true
	case <-ctx.Done():
		pause.Stop()
		return false
	}
}

// timerLoop publishes the remaining time every tick and ends the round
// when the deadline passes, tearing the spawner down with it.
func (r *Round) timerLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.session.TickRemaining()
			switch {
			case st.Over:
				summary := r.session.Summary()
				r.emitter.emit(EventGameOver, OverPayload{
					Score:         summary.Score,
					Misses:        summary.Misses,
					TotalAttempts: summary.Attempts,
				})
				r.cancel()
				slog.Info("Round finished",
					"session_id", r.id,
					"score", summary.Score,
					"misses", summary.Misses)
				return
			case !st.Running:
				// Stopped elsewhere; cancellation is already on its way.
				return
			default:
				r.emitter.emit(EventTimeUpdate, TimePayload{
					TimeRemaining: st.Remaining.Seconds(),
					Elapsed:       st.Elapsed.Seconds(),
				})
			}
		}
	}
}
