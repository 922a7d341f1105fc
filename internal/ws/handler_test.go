package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/whackamole/internal/domain"
	"github.com/ashureev/whackamole/internal/game"
)

type fakeRepo struct {
	mu      sync.Mutex
	scores  []domain.HighScore
	saveErr error
	topErr  error
}

func (f *fakeRepo) SaveScore(_ context.Context, entry domain.HighScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.scores = append(f.scores, entry)
	return nil
}

func (f *fakeRepo) TopScores(_ context.Context, _ int) ([]domain.HighScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topErr != nil {
		return nil, f.topErr
	}
	out := make([]domain.HighScore, len(f.scores))
	copy(out, f.scores)
	return out, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) saved() []domain.HighScore {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.HighScore, len(f.scores))
	copy(out, f.scores)
	return out
}

// testProfiles shrinks every preset so rounds resolve in test time.
func testProfiles() game.Profiles {
	return game.Profiles{
		game.DifficultyEasy: {
			MoleTimeout:   2 * time.Second,
			MinSpawnDelay: 100 * time.Millisecond,
			MaxSpawnDelay: 200 * time.Millisecond,
			RoundDuration: 10 * time.Second,
		},
		game.DifficultyMedium: {
			MoleTimeout:   time.Second,
			MinSpawnDelay: 10 * time.Millisecond,
			MaxSpawnDelay: 30 * time.Millisecond,
			RoundDuration: 5 * time.Second,
		},
		game.DifficultyHard: {
			MoleTimeout:   50 * time.Millisecond,
			MinSpawnDelay: 10 * time.Millisecond,
			MaxSpawnDelay: 20 * time.Millisecond,
			RoundDuration: 1500 * time.Millisecond,
		},
	}
}

type wsFixture struct {
	srv    *httptest.Server
	hub    *Hub
	rounds *game.Registry
	repo   *fakeRepo
}

func newFixture(t *testing.T) *wsFixture {
	t.Helper()

	fx := &wsFixture{
		hub:    NewHub(),
		rounds: game.NewRegistry(),
		repo:   &fakeRepo{},
	}
	h := NewHandler(fx.rounds, fx.hub, testProfiles(), fx.repo, "*", true)
	h.SetTick(20 * time.Millisecond)
	fx.srv = httptest.NewServer(h)
	t.Cleanup(fx.srv.Close)
	return fx
}

func (fx *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, fx.srv.URL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()

	body := map[string]any{"type": msgType}
	if payload != nil {
		body["payload"] = payload
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func recvFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Frame is not JSON: %v", err)
	}
	return f
}

// recvFrameOfType reads frames until one of the wanted type arrives,
// skipping interleaved gameplay traffic such as time updates.
func recvFrameOfType(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()

	for i := 0; i < 500; i++ {
		f := recvFrame(t, conn)
		if f.Type == want {
			return f
		}
	}
	t.Fatalf("Did not receive a %q frame", want)
	return frame{}
}

func decodePayload(t *testing.T, f frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("Payload of %q frame is not valid: %v", f.Type, err)
	}
}

func TestHandlerConnectedGreeting(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)

	f := recvFrame(t, conn)
	if f.Type != TypeConnected {
		t.Fatalf("Expected first frame %q, got %q", TypeConnected, f.Type)
	}

	var payload ConnectedPayload
	decodePayload(t, f, &payload)
	if payload.SessionID == "" {
		t.Error("Expected a session id in the greeting")
	}
}

func TestHandlerPingPong(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypePing, nil)

	f := recvFrame(t, conn)
	if f.Type != TypePong {
		t.Errorf("Expected %q, got %q", TypePong, f.Type)
	}
}

func TestHandlerUnknownMessageType(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, "launch_rocket", nil)

	f := recvFrameOfType(t, conn, TypeError)
	var payload ErrorPayload
	decodePayload(t, f, &payload)
	if !strings.Contains(payload.Message, "unknown message type") {
		t.Errorf("Expected unknown-type error, got %q", payload.Message)
	}
}

func TestHandlerMalformedMessage(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	f := recvFrameOfType(t, conn, TypeError)
	var payload ErrorPayload
	decodePayload(t, f, &payload)
	if payload.Message != "malformed message" {
		t.Errorf("Expected malformed message error, got %q", payload.Message)
	}
}

func TestHandlerStartGameUnknownDifficulty(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "nightmare"})

	f := recvFrameOfType(t, conn, TypeError)
	var payload ErrorPayload
	decodePayload(t, f, &payload)
	if !strings.Contains(payload.Message, "nightmare") {
		t.Errorf("Expected the rejected name in the error, got %q", payload.Message)
	}
	if fx.rounds.Len() != 0 {
		t.Errorf("Expected no round to start, got %d", fx.rounds.Len())
	}
}

func TestHandlerStartGameDefaultsToMedium(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, nil)

	f := recvFrameOfType(t, conn, string(game.EventGameStarted))
	var payload struct {
		Difficulty string `json:"difficulty"`
		Message    string `json:"message"`
	}
	decodePayload(t, f, &payload)
	if payload.Difficulty != "medium" {
		t.Errorf("Expected medium difficulty, got %q", payload.Difficulty)
	}
	if payload.Message != "Game started on MEDIUM mode!" {
		t.Errorf("Unexpected start message %q", payload.Message)
	}
}

func TestHandlerWhackFlow(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "medium"})

	started := recvFrameOfType(t, conn, string(game.EventGameStarted))
	var startPayload struct {
		Duration    int     `json:"duration"`
		Difficulty  string  `json:"difficulty"`
		MoleTimeout float64 `json:"mole_timeout"`
	}
	decodePayload(t, started, &startPayload)
	if startPayload.Duration != 5 {
		t.Errorf("Expected duration 5, got %d", startPayload.Duration)
	}
	if startPayload.MoleTimeout != 1.0 {
		t.Errorf("Expected mole timeout 1.0, got %v", startPayload.MoleTimeout)
	}

	spawn := recvFrameOfType(t, conn, string(game.EventMoleSpawn))
	var spawnPayload struct {
		Hole int `json:"hole"`
	}
	decodePayload(t, spawn, &spawnPayload)
	if spawnPayload.Hole < 1 || spawnPayload.Hole > game.SlotCount {
		t.Fatalf("Spawn hole %d out of range", spawnPayload.Hole)
	}

	sendMsg(t, conn, TypeWhack, WhackPayload{Hole: spawnPayload.Hole})

	result := recvFrameOfType(t, conn, string(game.EventWhackResult))
	var resultPayload struct {
		Success      bool    `json:"success"`
		Hole         int     `json:"hole"`
		Score        int     `json:"score"`
		ReactionTime float64 `json:"reaction_time"`
	}
	decodePayload(t, result, &resultPayload)
	if !resultPayload.Success {
		t.Fatalf("Expected a hit, got %s", result.Payload)
	}
	if resultPayload.Hole != spawnPayload.Hole {
		t.Errorf("Expected hole %d, got %d", spawnPayload.Hole, resultPayload.Hole)
	}
	if resultPayload.Score != 1 {
		t.Errorf("Expected score 1, got %d", resultPayload.Score)
	}
	if resultPayload.ReactionTime <= 0 {
		t.Errorf("Expected a positive reaction time, got %v", resultPayload.ReactionTime)
	}

	sendMsg(t, conn, TypeStopGame, nil)

	stopped := recvFrameOfType(t, conn, string(game.EventGameStopped))
	var stopPayload struct {
		Score int `json:"score"`
	}
	decodePayload(t, stopped, &stopPayload)
	if stopPayload.Score != 1 {
		t.Errorf("Expected final score 1, got %d", stopPayload.Score)
	}
}

func TestHandlerMoleMissed(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "hard"})
	recvFrameOfType(t, conn, string(game.EventGameStarted))

	missed := recvFrameOfType(t, conn, string(game.EventMoleMissed))
	var payload struct {
		Hole   int `json:"hole"`
		Misses int `json:"misses"`
	}
	decodePayload(t, missed, &payload)
	if payload.Hole < 1 || payload.Hole > game.SlotCount {
		t.Errorf("Missed hole %d out of range", payload.Hole)
	}
	if payload.Misses < 1 {
		t.Errorf("Expected at least one miss, got %d", payload.Misses)
	}
}

func TestHandlerWhackInvalidHole(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeWhack, WhackPayload{Hole: 9})

	f := recvFrameOfType(t, conn, string(game.EventWhackResult))
	var payload struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodePayload(t, f, &payload)
	if payload.Success {
		t.Error("Expected success false")
	}
	if payload.Error != "Invalid hole number" {
		t.Errorf("Expected invalid hole error, got %q", payload.Error)
	}
}

func TestHandlerWhackWithoutGame(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeWhack, WhackPayload{Hole: 3})

	f := recvFrameOfType(t, conn, string(game.EventWhackResult))
	var payload struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	decodePayload(t, f, &payload)
	if payload.Success || payload.Error != "Game not running" {
		t.Errorf("Expected game-not-running rejection, got %s", f.Payload)
	}
}

func TestHandlerStopWithoutGameIsSilent(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStopGame, nil)
	sendMsg(t, conn, TypePing, nil)

	f := recvFrame(t, conn)
	if f.Type != TypePong {
		t.Errorf("Expected only a pong after a no-op stop, got %q", f.Type)
	}
}

func TestHandlerStartGameReplacesRoundSilently(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "medium"})
	recvFrameOfType(t, conn, string(game.EventGameStarted))

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "easy"})

	// The displaced round must not announce game_stopped; the next
	// round confirmation is the only thing the client should learn.
	for i := 0; i < 500; i++ {
		f := recvFrame(t, conn)
		if f.Type == string(game.EventGameStopped) {
			t.Fatal("Displaced round leaked a game_stopped event")
		}
		if f.Type == string(game.EventGameStarted) {
			var payload struct {
				Difficulty string `json:"difficulty"`
			}
			decodePayload(t, f, &payload)
			if payload.Difficulty != "easy" {
				t.Errorf("Expected easy difficulty, got %q", payload.Difficulty)
			}
			if fx.rounds.Len() != 1 {
				t.Errorf("Expected exactly one live round, got %d", fx.rounds.Len())
			}
			return
		}
	}
	t.Fatal("Did not receive the replacement game_started frame")
}

func TestHandlerGameOverEndsRound(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "hard"})
	recvFrameOfType(t, conn, string(game.EventGameStarted))

	over := recvFrameOfType(t, conn, string(game.EventGameOver))
	var payload struct {
		Score         int `json:"score"`
		Misses        int `json:"misses"`
		TotalAttempts int `json:"total_attempts"`
	}
	decodePayload(t, over, &payload)
	if payload.TotalAttempts != payload.Score+payload.Misses {
		t.Errorf("Attempts %d != score %d + misses %d", payload.TotalAttempts, payload.Score, payload.Misses)
	}

	// A whack after the natural end is answered as not running.
	sendMsg(t, conn, TypeWhack, WhackPayload{Hole: 2})
	f := recvFrameOfType(t, conn, string(game.EventWhackResult))
	var whack struct {
		Error string `json:"error"`
	}
	decodePayload(t, f, &whack)
	if whack.Error != "Game not running" {
		t.Errorf("Expected game-not-running rejection, got %q", whack.Error)
	}

	// The finished round drains out of the registry.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && fx.rounds.Len() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if fx.rounds.Len() != 0 {
		t.Errorf("Expected the finished round to be evicted, got %d", fx.rounds.Len())
	}
}

func TestHandlerDisconnectTearsDownRound(t *testing.T) {
	fx := newFixture(t)
	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeStartGame, StartGamePayload{Difficulty: "medium"})
	recvFrameOfType(t, conn, string(game.EventGameStarted))

	if err := conn.Close(websocket.StatusNormalClosure, "leaving"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fx.rounds.Len() == 0 && fx.hub.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected round and client cleanup, got %d rounds and %d clients",
		fx.rounds.Len(), fx.hub.Len())
}

func TestHandlerGetHighScores(t *testing.T) {
	fx := newFixture(t)
	fx.repo.scores = []domain.HighScore{
		domain.NewHighScore("alice", 12, "medium", time.Now()),
		domain.NewHighScore("bob", 8, "easy", time.Now()),
	}

	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)
	other := fx.dial(t)
	recvFrameOfType(t, other, TypeConnected)

	sendMsg(t, conn, TypeGetHighScores, nil)

	f := recvFrameOfType(t, conn, TypeHighScoresUpdate)
	var scores []domain.HighScore
	decodePayload(t, f, &scores)
	if len(scores) != 2 {
		t.Errorf("Expected 2 scores, got %d", len(scores))
	}

	// The listing goes only to the requester.
	sendMsg(t, other, TypePing, nil)
	if f := recvFrame(t, other); f.Type != TypePong {
		t.Errorf("Expected only a pong for the other client, got %q", f.Type)
	}
}

func TestHandlerGetHighScoresUnavailable(t *testing.T) {
	fx := newFixture(t)
	fx.repo.topErr = errors.New("database is gone")

	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeGetHighScores, nil)

	f := recvFrameOfType(t, conn, TypeError)
	var payload ErrorPayload
	decodePayload(t, f, &payload)
	if payload.Message != "high scores unavailable" {
		t.Errorf("Expected unavailable error, got %q", payload.Message)
	}
}

func TestHandlerSubmitScoreBroadcasts(t *testing.T) {
	fx := newFixture(t)

	connA := fx.dial(t)
	recvFrameOfType(t, connA, TypeConnected)
	connB := fx.dial(t)
	recvFrameOfType(t, connB, TypeConnected)

	sendMsg(t, connA, TypeSubmitScore, SubmitScorePayload{
		Name:       "Alice",
		Score:      42,
		Difficulty: "hard",
	})

	for _, conn := range []*websocket.Conn{connA, connB} {
		f := recvFrameOfType(t, conn, TypeHighScoresUpdate)
		var scores []domain.HighScore
		decodePayload(t, f, &scores)
		if len(scores) != 1 || scores[0].Name != "Alice" || scores[0].Score != 42 {
			t.Errorf("Expected the submitted entry, got %v", scores)
		}
	}

	saved := fx.repo.saved()
	if len(saved) != 1 || saved[0].Name != "Alice" {
		t.Errorf("Expected one saved entry, got %v", saved)
	}
}

func TestHandlerSubmitScoreSaveFails(t *testing.T) {
	fx := newFixture(t)
	fx.repo.saveErr = errors.New("disk full")

	conn := fx.dial(t)
	recvFrameOfType(t, conn, TypeConnected)

	sendMsg(t, conn, TypeSubmitScore, SubmitScorePayload{Name: "Alice", Score: 1})

	f := recvFrameOfType(t, conn, TypeError)
	var payload ErrorPayload
	decodePayload(t, f, &payload)
	if payload.Message != "failed to save score" {
		t.Errorf("Expected save failure error, got %q", payload.Message)
	}
}

func TestHandlerCloseAll(t *testing.T) {
	fx := newFixture(t)

	connA := fx.dial(t)
	recvFrameOfType(t, connA, TypeConnected)
	connB := fx.dial(t)
	recvFrameOfType(t, connB, TypeConnected)

	fx.hub.CloseAll()

	for _, conn := range []*websocket.Conn{connA, connB} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(ctx)
		cancel()
		if err == nil {
			t.Fatal("Expected reads to fail after CloseAll")
		}
		if websocket.CloseStatus(err) != websocket.StatusGoingAway {
			t.Errorf("Expected going-away close, got %v", err)
		}
	}
	if fx.hub.Len() != 0 {
		t.Errorf("Expected no clients after CloseAll, got %d", fx.hub.Len())
	}
}

func TestHandlerRejectsBadOrigin(t *testing.T) {
	repo := &fakeRepo{}
	h := NewHandler(game.NewRegistry(), NewHub(), testProfiles(), repo, "https://game.example.com", false)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, resp, err := websocket.Dial(ctx, srv.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatal("Expected dial to fail for a rejected origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestHandlerAllowsConfiguredOrigin(t *testing.T) {
	repo := &fakeRepo{}
	h := NewHandler(game.NewRegistry(), NewHub(), testProfiles(), repo, "https://game.example.com", false)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, srv.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://game.example.com"}},
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	}()

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Frame is not JSON: %v", err)
	}
	if f.Type != TypeConnected {
		t.Errorf("Expected %q frame, got %q", TypeConnected, f.Type)
	}
}
