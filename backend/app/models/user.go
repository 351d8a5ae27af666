package models

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}
