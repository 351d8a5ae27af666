package models

import "time"

type Computer struct {
	ID       string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"size:36;index;not null"`
	User     *User  `gorm:"constraint:OnDelete:CASCADE"`
	Name     string `gorm:"size:255"`
	Online   bool   `gorm:"not null;default:false"`
	LastSeen *time.Time
}
