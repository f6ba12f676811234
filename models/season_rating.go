package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultRating is assumed for any player with no stored row for the season.
const DefaultRating = 1500

type SeasonRating struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_user_season"`
	Season    string         `json:"season" gorm:"not null;uniqueIndex:idx_user_season"`
	Rating    int            `json:"rating" gorm:"not null;default:1500"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User User `json:"user,omitempty"`
}
