// Package persist is the match-statistics boundary: results are written out
// once at match end and read back for stats queries. The simulation never
// depends on it being available; a failed save is surfaced, not retried
// into the game loop.
package persist

import (
	"context"

	"github.com/pitchside/pitchside/game"
)

// WinnerDraw marks a tied final score.
const WinnerDraw = "draw"

// MatchPlayer is the per-player slice of a finished match.
type MatchPlayer struct {
	Name string
	Team game.Team
}

// MatchResult is what the core hands over when a match finishes.
type MatchResult struct {
	Score   game.Score
	Players []MatchPlayer
}

// SaveOutcome is the store's acknowledgement.
type SaveOutcome struct {
	MatchID    int64
	WinnerTeam string
}

// PlayerStats is one aggregate row keyed by player name.
type PlayerStats struct {
	Name         string `json:"name"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	TotalMatches int    `json:"totalMatches"`
}

// MatchStore persists finished matches and answers stats queries.
type MatchStore interface {
	SaveMatch(ctx context.Context, result MatchResult) (SaveOutcome, error)
	PlayerStats(ctx context.Context, name string) (PlayerStats, error)
	Rankings(ctx context.Context, limit int) ([]PlayerStats, error)
}

// Winner derives the winning team label from a final score.
func Winner(score game.Score) string {
	switch {
	case score.Alpha > score.Bravo:
		return string(game.TeamAlpha)
	case score.Bravo > score.Alpha:
		return string(game.TeamBravo)
	default:
		return WinnerDraw
	}
}
