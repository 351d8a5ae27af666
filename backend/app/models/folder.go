package models

// Folder is a synchronization unit anchored to the computer holding the
// authoritative copy. IsSynced and PendingOperations are cached projections
// of the per-target delivery state and are recomputed by the coordinator,
// never mutated ad hoc.
type Folder struct {
	ID                string    `gorm:"primaryKey;size:36"`
	Name              string    `gorm:"size:255;not null"`
	OriginComputerID  string    `gorm:"size:36;index;not null"`
	OriginComputer    *Computer `gorm:"foreignKey:OriginComputerID;constraint:OnDelete:CASCADE"`
	IsSynced          bool      `gorm:"not null;default:true"`
	PendingOperations int64     `gorm:"not null;default:0"`
}
