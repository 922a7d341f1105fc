// Package game implements the whack-a-mole round engine: authoritative
// per-player session state, the mole spawner and round timer loops that
// mutate it, and the registry of running rounds.
package game

import (
	"errors"
	"sync"
	"time"
)

// SlotCount is the number of mole holes on the board. Slots are numbered
// 1 through SlotCount; 0 means no mole is up.
const SlotCount = 6

// ValidSlot reports whether n names a hole on the board.
func ValidSlot(n int) bool {
	return n >= 1 && n <= SlotCount
}

// Transition errors.
var (
	ErrNotRunning   = errors.New("game not running")
	ErrTargetActive = errors.New("mole already active")
)

// Session is the authoritative state of one player's round. All mutation
// goes through the transition methods below, each of which runs atomically
// under the session mutex. The spawner loop, the timer loop, and inbound
// whack requests are arbitrated solely by that mutex: whichever transition
// acquires it first against the current mole wins, and the loser sees a
// state that no longer matches and backs off without mutating anything.
type Session struct {
	mu sync.Mutex

	difficulty Difficulty
	profile    Profile

	running   bool
	score     int
	misses    int
	startedAt time.Time
	deadline  time.Time

	// activeSlot is 0 when no mole is up. resolved belongs to the current
	// activation only; it is closed on a successful whack so the spawner's
	// expiry wait wakes immediately, and replaced on the next activation so
	// a close can never bleed into a later mole.
	activeSlot  int
	activatedAt time.Time
	resolved    chan struct{}

	now func() time.Time
}

// Activation describes a mole that just came up.
type Activation struct {
	Slot      int
	Timeout   time.Duration
	Remaining time.Duration

	// Resolved is closed if this mole is whacked, waking any expiry wait.
	Resolved <-chan struct{}
}

// HitResult describes the outcome of a whack attempt.
type HitResult struct {
	Hit        bool
	Slot       int
	ActiveSlot int // mole that was actually up on a failed attempt, 0 if none
	Score      int
	Misses     int
	Reaction   time.Duration
	Remaining  time.Duration
}

// MissResult describes a mole that timed out unwhacked.
type MissResult struct {
	Slot      int
	Score     int
	Misses    int
	Remaining time.Duration
}

// TimeStatus is a round clock reading.
type TimeStatus struct {
	Running   bool
	Over      bool // true on the single tick that ends the round
	Remaining time.Duration
	Elapsed   time.Duration
}

// Summary holds the final counters of a round.
type Summary struct {
	Score    int
	Misses   int
	Attempts int
}

// Snapshot is a point-in-time copy of the observable session state.
type Snapshot struct {
	Difficulty Difficulty
	Running    bool
	Score      int
	Misses     int
	ActiveSlot int
}

// NewSession creates a running session. The round deadline is fixed at
// creation from the profile's round duration. now may be nil, in which
// case wall-clock time is used; tests inject their own clock.
func NewSession(difficulty Difficulty, profile Profile, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Session{
		difficulty: difficulty,
		profile:    profile,
		running:    true,
		startedAt:  start,
		deadline:   start.Add(profile.RoundDuration),
		now:        now,
	}
}

// Activate puts a mole up in the given slot. It fails with ErrNotRunning
// once the round has ended and with ErrTargetActive if a mole is already
// up; neither failure mutates state.
func (s *Session) Activate(slot int) (Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return Activation{}, ErrNotRunning
	}
	if s.activeSlot != 0 {
		return Activation{}, ErrTargetActive
	}

	now := s.now()
	s.activeSlot = slot
	s.activatedAt = now
	s.resolved = make(chan struct{})

	return Activation{
		Slot:      slot,
		Timeout:   s.profile.MoleTimeout,
		Remaining: s.remainingLocked(now),
		Resolved:  s.resolved,
	}, nil
}

// ResolveHit resolves a whack attempt against the current mole. A matching
// slot scores, clears the mole, and wakes the spawner; anything else is a
// failed attempt that leaves the board untouched. It never clears a mole
// in a different slot and never touches the miss counter.
func (s *Session) ResolveHit(slot int) (HitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return HitResult{}, ErrNotRunning
	}

	now := s.now()
	if s.activeSlot != 0 && s.activeSlot == slot {
		s.score++
		reaction := now.Sub(s.activatedAt)
		close(s.resolved)
		s.activeSlot = 0
		s.resolved = nil

		return HitResult{
			Hit:       true,
			Slot:      slot,
			Score:     s.score,
			Misses:    s.misses,
			Reaction:  reaction,
			Remaining: s.remainingLocked(now),
		}, nil
	}

	return HitResult{
		Slot:       slot,
		ActiveSlot: s.activeSlot,
		Score:      s.score,
		Misses:     s.misses,
		Remaining:  s.remainingLocked(now),
	}, nil
}

// Expire retires the mole in the given slot as a miss. It reports false
// without mutating anything if the round has ended or the slot no longer
// holds the active mole: a hit that won the race has already cleared it,
// so an expiry and a hit can never both count the same activation.
func (s *Session) Expire(slot int) (MissResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.activeSlot != slot {
		return MissResult{}, false
	}

	s.misses++
	s.activeSlot = 0
	s.resolved = nil

	return MissResult{
		Slot:      slot,
		Score:     s.score,
		Misses:    s.misses,
		Remaining: s.remainingLocked(s.now()),
	}, true
}

// TickRemaining reads the round clock. On the tick that crosses the
// deadline it flips the session to stopped and reports Over exactly once;
// later calls are no-ops that report a stopped session.
func (s *Session) TickRemaining() TimeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return TimeStatus{}
	}

	now := s.now()
	elapsed := now.Sub(s.startedAt)
	remaining := s.deadline.Sub(now)
	if remaining <= 0 {
		s.running = false
		s.activeSlot = 0
		s.resolved = nil
		return TimeStatus{Over: true, Elapsed: elapsed}
	}

	return TimeStatus{Running: true, Remaining: remaining, Elapsed: elapsed}
}

// Stop ends the round. It reports whether this call performed the
// transition; repeated stops are no-ops.
func (s *Session) Stop() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return s.summaryLocked(), false
	}

	s.running = false
	s.activeSlot = 0
	s.resolved = nil
	return s.summaryLocked(), true
}

// Running reports whether the round is still in play.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Summary returns the current counters.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Difficulty: s.difficulty,
		Running:    s.running,
		Score:      s.score,
		Misses:     s.misses,
		ActiveSlot: s.activeSlot,
	}
}

// Deadline returns the wall-clock time at which the round ends.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *Session) summaryLocked() Summary {
	return Summary{
		Score:    s.score,
		Misses:   s.misses,
		Attempts: s.score + s.misses,
	}
}

func (s *Session) remainingLocked(now time.Time) time.Duration {
	remaining := s.deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
