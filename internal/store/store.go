// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/whackamole/internal/domain"
)

// Repository defines the interface for persisting leaderboard data.
type Repository interface {
	// SaveScore inserts a leaderboard entry and trims the table to the
	// configured number of top entries.
	SaveScore(ctx context.Context, entry domain.HighScore) error

	// TopScores retrieves the best entries, highest score first. A
	// non-positive limit falls back to the leaderboard size.
	TopScores(ctx context.Context, limit int) ([]domain.HighScore, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
