// Package domain contains core domain types for the whack-a-mole service.
package domain

import (
	"strings"
	"time"
)

const (
	// MaxNameLength caps leaderboard names.
	MaxNameLength = 10

	// DefaultName stands in for a missing player name.
	DefaultName = "Anonymous"

	// TopScoreLimit is how many entries the leaderboard keeps.
	TopScoreLimit = 10

	// DateFormat is the display format for leaderboard dates.
	DateFormat = "2006-01-02"
)

// HighScore is one leaderboard entry.
type HighScore struct {
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Difficulty string `json:"difficulty"`
	Date       string `json:"date"`
}

// NewHighScore builds a sanitized leaderboard entry from raw player input:
// the name is trimmed, capped at MaxNameLength runes, and defaulted when
// empty; negative scores are clamped to zero.
func NewHighScore(name string, score int, difficulty string, submitted time.Time) HighScore {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = string(runes[:MaxNameLength])
	}

	if score < 0 {
		score = 0
	}

	if difficulty == "" {
		difficulty = "medium"
	}

	return HighScore{
		Name:       name,
		Score:      score,
		Difficulty: difficulty,
		Date:       submitted.Format(DateFormat),
	}
}
