package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Username     string         `json:"username" gorm:"uniqueIndex;not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	DisplayName  string         `json:"display_name"`
	NativeLang   string         `json:"native_lang"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Ratings []SeasonRating `json:"ratings,omitempty" gorm:"foreignKey:UserID"`
	Results []MatchResult  `json:"results,omitempty" gorm:"foreignKey:UserID"`
}
