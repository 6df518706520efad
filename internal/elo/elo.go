// Package elo implements the rating update applied when a match ends.
package elo

import "math"

const (
	// KFactor is the fixed K used for every update.
	KFactor = 32.0

	// DefaultRating seeds a user's first rating row for a game. The value
	// is 1200 everywhere: read paths, seeding and leaderboard fallbacks all
	// use this single constant.
	DefaultRating = 1200
)

// Result is the outcome of a match from player one's perspective.
type Result int

const (
	Player1Wins Result = iota
	Player2Wins
	Draw
)

// ExpectedScore is the probability-like expected performance of a player
// rated r against an opponent rated opponent:
// 1 / (1 + 10^((opponent-r)/400)).
func ExpectedScore(r, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-r)/400.0))
}

// Update returns both players' new ratings after a match. Deltas for a
// decisive result always have opposite signs; a draw between equal ratings
// leaves both unchanged.
func Update(r1, r2 int, result Result) (new1, new2 int) {
	e1 := ExpectedScore(r1, r2)
	e2 := 1.0 - e1

	var s1, s2 float64
	switch result {
	case Player1Wins:
		s1, s2 = 1.0, 0.0
	case Player2Wins:
		s1, s2 = 0.0, 1.0
	case Draw:
		s1, s2 = 0.5, 0.5
	}

	new1 = r1 + int(math.Round(KFactor*(s1-e1)))
	new2 = r2 + int(math.Round(KFactor*(s2-e2)))
	return new1, new2
}
