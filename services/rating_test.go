package services

import "testing"

func TestEloExpectedEqualRatings(t *testing.T) {
	if got := eloExpected(1500, 1500); got != 0.5 {
		t.Errorf("expected score for equal ratings = %v, want 0.5", got)
	}
}

func TestEloDelta(t *testing.T) {
	tests := []struct {
		name     string
		rating   int
		opponent int
		score    float64
		want     int
	}{
		{"equal ratings win", 1500, 1500, 1, 16},
		{"equal ratings loss", 1500, 1500, 0, -16},
		{"favorite wins small gain", 1700, 1500, 1, 8},
		{"favorite loses big drop", 1700, 1500, 0, -24},
		{"underdog wins big gain", 1500, 1700, 1, 24},
		{"underdog loses small drop", 1500, 1700, 0, -8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eloDelta(tt.rating, tt.opponent, tt.score); got != tt.want {
				t.Errorf("eloDelta(%d, %d, %v) = %d, want %d", tt.rating, tt.opponent, tt.score, got, tt.want)
			}
		})
	}
}

func TestEloDeltaSymmetric(t *testing.T) {
	// Both deltas come from pre-match ratings, so they must cancel out for
	// equally rated players.
	winner := eloDelta(1500, 1500, 1)
	loser := eloDelta(1500, 1500, 0)
	if winner+loser != 0 {
		t.Errorf("deltas %d and %d do not cancel", winner, loser)
	}
}

func TestApplyDeltaFloor(t *testing.T) {
	if got := applyDelta(110, -24); got != ratingFloor {
		t.Errorf("applyDelta(110, -24) = %d, want floor %d", got, ratingFloor)
	}
	if got := applyDelta(1500, -16); got != 1484 {
		t.Errorf("applyDelta(1500, -16) = %d, want 1484", got)
	}
}
