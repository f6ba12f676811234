package services

import "math"

const (
	eloK        = 32
	ratingFloor = 100
)

// eloExpected is the classic expected-score curve: the probability that a
// player rated `a` beats a player rated `b`.
func eloExpected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// eloDelta computes the rating change for one side. score is 1 for a win and
// 0 for a loss; both sides must be computed from pre-match ratings.
func eloDelta(rating, opponentRating int, score float64) int {
	return int(math.Round(eloK * (score - eloExpected(rating, opponentRating))))
}

// applyDelta adds a delta to a rating and enforces the floor.
func applyDelta(rating, delta int) int {
	next := rating + delta
	if next < ratingFloor {
		return ratingFloor
	}
	return next
}
