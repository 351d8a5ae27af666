package repo

import (
	"folder-sync/backend/app/models"

	"gorm.io/gorm"
)

type UserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) *UserRepository { return &UserRepository{db: db} }

func (r *UserRepository) CountByName(name string) (int64, error) {
	var count int64
	return count, r.db.Model(&models.User{}).Where("name = ?", name).Count(&count).Error
}

func (r *UserRepository) Create(u *models.User) error { return r.db.Create(u).Error }

func (r *UserRepository) FindByName(name string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("name = ?", name).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes the user and everything hanging off it: computers, folders
// originating on those computers, and backup links on either side. The
// cascade is explicit so it holds regardless of driver FK enforcement.
// Returns the IDs of folders that were removed.
func (r *UserRepository) Delete(id string) ([]string, error) {
	var folderIDs []string
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var computerIDs []string
		if err := tx.Model(&models.Computer{}).Where("user_id = ?", id).Pluck("id", &computerIDs).Error; err != nil {
			return err
		}
		if len(computerIDs) > 0 {
			if err := tx.Model(&models.Folder{}).Where("origin_computer_id IN ?", computerIDs).Pluck("id", &folderIDs).Error; err != nil {
				return err
			}
			if err := tx.Where("computer_id IN ?", computerIDs).Delete(&models.FolderBackup{}).Error; err != nil {
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
			if err := tx.Where("id IN ?", computerIDs).Delete(&models.Computer{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&models.User{}).Error
	})
	if err != nil {
		return nil, err
	}
	return folderIDs, nil
}
