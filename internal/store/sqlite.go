package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/whackamole/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS high_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		score INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_high_scores_rank ON high_scores(score DESC, created_at ASC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveScore inserts a leaderboard entry and trims the table to the top
// entries. Retries with exponential backoff on SQLITE_BUSY, which shows up
// when several players submit at once.
func (s *SQLiteStore) SaveScore(ctx context.Context, entry domain.HighScore) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.saveScoreOnce(ctx, entry)
		if err == nil {
			return nil
		}

		if isConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("SaveScore hit a locked database, retrying",
				"name", entry.Name,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("save score after %d attempts: %w", i+1, err)
	}

	return nil
}

func (s *SQLiteStore) saveScoreOnce(ctx context.Context, entry domain.HighScore) error {
	insert := `
	INSERT INTO high_scores (name, score, difficulty, date, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insert,
		entry.Name, entry.Score, entry.Difficulty, entry.Date, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	// Keep only the leaderboard-sized head; ties resolve to the earlier entry.
	prune := `
	DELETE FROM high_scores WHERE id NOT IN (
		SELECT id FROM high_scores ORDER BY score DESC, created_at ASC, id ASC LIMIT ?
	)`
	if _, err := s.db.ExecContext(ctx, prune, domain.TopScoreLimit); err != nil {
		return fmt.Errorf("prune scores: %w", err)
	}

	return nil
}

// TopScores retrieves the best entries, highest score first.
func (s *SQLiteStore) TopScores(ctx context.Context, limit int) ([]domain.HighScore, error) {
	if limit <= 0 {
		limit = domain.TopScoreLimit
	}

	query := `
		SELECT name, score, difficulty, date
		FROM high_scores ORDER BY score DESC, created_at ASC, id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query top scores: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close top scores rows", "error", closeErr)
		}
	}()

	scores := []domain.HighScore{}
	for rows.Next() {
		var entry domain.HighScore
		if err := rows.Scan(&entry.Name, &entry.Score, &entry.Difficulty, &entry.Date); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		scores = append(scores, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top scores: %w", err)
	}

	return scores, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
