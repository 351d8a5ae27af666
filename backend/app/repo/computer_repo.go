package repo

import (
	"time"

	"folder-sync/backend/app/models"

	"gorm.io/gorm"
)

type ComputerRepository struct{ db *gorm.DB }

func NewComputerRepository(db *gorm.DB) *ComputerRepository { return &ComputerRepository{db: db} }

func (r *ComputerRepository) Create(c *models.Computer) error { return r.db.Create(c).Error }

func (r *ComputerRepository) FindByID(id string) (*models.Computer, error) {
	var c models.Computer
	if err := r.db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ComputerRepository) ListByUser(userID string) ([]models.Computer, error) {
	var out []models.Computer
	return out, r.db.Where("user_id = ?", userID).Order("id").Find(&out).Error
}

// BelongsToUser reports whether the computer exists and is owned by the user.
func (r *ComputerRepository) BelongsToUser(id, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Computer{}).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error
	return count > 0, err
}

func (r *ComputerRepository) SetPresence(id string, online bool, lastSeen *time.Time) error {
	return r.db.Model(&models.Computer{}).Where("id = ?", id).
		Updates(map[string]any{"online": online, "last_seen": lastSeen}).Error
}

// Delete removes the computer, the folders it originates, and every backup
// link referencing it on either side. Explicit transactional cascade; the
// returned slice holds the IDs of folders deleted along with their origin.
func (r *ComputerRepository) Delete(id string) ([]string, error) {
	var folderIDs []string
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("computer_id = ?", id).Delete(&models.FolderBackup{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Folder{}).Where("origin_computer_id = ?", id).Pluck("id", &folderIDs).Error; err != nil {
			return err
		}
		if len(folderIDs) > 0 {
			if err := tx.Where("folder_id IN ?", folderIDs).Delete(&models.FolderBackup{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", folderIDs).Delete(&models.Folder{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&models.Computer{}).Error
	})
	if err != nil {
		return nil, err
	}
	return folderIDs, nil
}
