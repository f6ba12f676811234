package models

import (
	"time"

	"gorm.io/gorm"
)

type Question struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Language       string         `json:"language" gorm:"index;not null"`
	Text           string         `json:"text" gorm:"not null"`
	ExpectedAnswer string         `json:"expected_answer" gorm:"not null"`
	Format         string         `json:"format" gorm:"not null;default:'translate'"` // translate, fill_blank, multiple_choice
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
