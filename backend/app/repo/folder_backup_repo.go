package repo

import (
	"folder-sync/backend/app/models"

	"gorm.io/gorm"
)

type FolderBackupRepository struct{ db *gorm.DB }

func NewFolderBackupRepository(db *gorm.DB) *FolderBackupRepository {
	return &FolderBackupRepository{db: db}
}

func (r *FolderBackupRepository) Add(folderID, computerID string) error {
	return r.db.Create(&models.FolderBackup{FolderID: folderID, ComputerID: computerID}).Error
}

func (r *FolderBackupRepository) Remove(folderID, computerID string) error {
	return r.db.Where("folder_id = ? AND computer_id = ?", folderID, computerID).
		Delete(&models.FolderBackup{}).Error
}

func (r *FolderBackupRepository) Exists(folderID, computerID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.FolderBackup{}).
		Where("folder_id = ? AND computer_id = ?", folderID, computerID).
		Count(&count).Error
	return count > 0, err
}

// TargetsOf lists the backup computers of a folder in ascending ID order,
// the order the coordinator dispatches in.
func (r *FolderBackupRepository) TargetsOf(folderID string) ([]string, error) {
	var out []string
	err := r.db.Model(&models.FolderBackup{}).
		Where("folder_id = ?", folderID).
		Order("computer_id").
		Pluck("computer_id", &out).Error
	return out, err
}

// FoldersFor lists folders the computer backs up.
func (r *FolderBackupRepository) FoldersFor(computerID string) ([]string, error) {
	var out []string
	err := r.db.Model(&models.FolderBackup{}).
		Where("computer_id = ?", computerID).
		Order("folder_id").
		Pluck("folder_id", &out).Error
	return out, err
}
