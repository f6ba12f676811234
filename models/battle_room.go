package models

import (
	"time"

	"gorm.io/gorm"
)

// BattleRoom is a friend invite that spawns an unranked room battle once the
// guest joins. Room battles keep win/loss tracking but never touch ratings.
type BattleRoom struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Code      string         `json:"code" gorm:"uniqueIndex;not null"`
	HostID    uint           `json:"host_id" gorm:"not null"`
	GuestID   *uint          `json:"guest_id"`
	Language  string         `json:"language" gorm:"not null"`
	Status    string         `json:"status" gorm:"not null;default:'open'"` // open, started, closed
	MatchID   string         `json:"match_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Host User `json:"host,omitempty" gorm:"foreignKey:HostID"`
}
