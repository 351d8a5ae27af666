package models

// FolderBackup links a folder to a computer that mirrors it. The pair is
// unique; rows disappear with either parent.
type FolderBackup struct {
	FolderID   string    `gorm:"primaryKey;size:36"`
	ComputerID string    `gorm:"primaryKey;size:36"`
	Folder     *Folder   `gorm:"constraint:OnDelete:CASCADE"`
	Computer   *Computer `gorm:"constraint:OnDelete:CASCADE"`
}
