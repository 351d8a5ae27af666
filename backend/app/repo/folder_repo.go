package repo

import (
	"folder-sync/backend/app/models"

	"gorm.io/gorm"
)

type FolderRepository struct{ db *gorm.DB }

func NewFolderRepository(db *gorm.DB) *FolderRepository { return &FolderRepository{db: db} }

func (r *FolderRepository) Create(f *models.Folder) error { return r.db.Create(f).Error }

func (r *FolderRepository) All() ([]models.Folder, error) {
	var out []models.Folder
	return out, r.db.Order("id").Find(&out).Error
}

func (r *FolderRepository) FindByID(id string) (*models.Folder, error) {
	var f models.Folder
	if err := r.db.Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// OwnerUserID resolves the user owning a folder through its origin computer.
func (r *FolderRepository) OwnerUserID(folderID string) (string, error) {
	var userID string
	err := r.db.Model(&models.Folder{}).
		Joins("JOIN computers ON computers.id = folders.origin_computer_id").
		Where("folders.id = ?", folderID).
		Pluck("computers.user_id", &userID).Error
	return userID, err
}

func (r *FolderRepository) ListByUser(userID string) ([]models.Folder, error) {
	var out []models.Folder
	err := r.db.
		Joins("JOIN computers ON computers.id = folders.origin_computer_id").
		Where("computers.user_id = ?", userID).
		Order("folders.id").
		Find(&out).Error
	return out, err
}

// ListByComputer returns folders where the computer is the origin or a
// backup target.
func (r *FolderRepository) ListByComputer(computerID string) ([]models.Folder, error) {
	var out []models.Folder
	err := r.db.Distinct("folders.*").
		Joins("LEFT JOIN folder_backups ON folder_backups.folder_id = folders.id").
		Where("folders.origin_computer_id = ? OR folder_backups.computer_id = ?", computerID, computerID).
		Order("folders.id").
		Find(&out).Error
	return out, err
}

func (r *FolderRepository) UpdateOrigin(folderID, originComputerID string) error {
	return r.db.Model(&models.Folder{}).Where("id = ?", folderID).
		Update("origin_computer_id", originComputerID).Error
}

// UpdateSyncState writes the cached projection columns.
func (r *FolderRepository) UpdateSyncState(folderID string, synced bool, pending int64) error {
	return r.db.Model(&models.Folder{}).Where("id = ?", folderID).
		Updates(map[string]any{"is_synced": synced, "pending_operations": pending}).Error
}

func (r *FolderRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("folder_id = ?", id).Delete(&models.FolderBackup{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Folder{}).Error
	})
}
