package models

import (
	"time"

	"gorm.io/gorm"
)

// MatchResult is one participant's row for a finished (or still running)
// battle. Two rows exist per match, one per player. Rows are created as
// placeholders (empty Result) when the match starts and completed exactly
// once when it is finalized.
type MatchResult struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	MatchID      string         `json:"match_id" gorm:"not null;uniqueIndex:idx_match_user"`
	UserID       uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_match_user"`
	OpponentID   uint           `json:"opponent_id" gorm:"not null"`
	Language     string         `json:"language" gorm:"not null"`
	Result       string         `json:"result"` // "" until finalized, then win, loss or draw
	RatingDelta  int            `json:"rating_delta"`
	RatingAfter  int            `json:"rating_after"`
	RoundHistory string         `json:"round_history"` // JSON-serialized []RoundResult
	Reason       string         `json:"reason"`        // normal, surrender, disconnect, timeout, draw
	EndedAt      *time.Time     `json:"ended_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User User `json:"user,omitempty"`
}
