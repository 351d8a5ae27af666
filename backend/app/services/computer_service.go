package services

import (
	"errors"

	"folder-sync/backend/app/models"
	"folder-sync/backend/app/repo"
	"folder-sync/backend/app/syncer"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ComputerService struct {
	computers *repo.ComputerRepository
	backups   *repo.FolderBackupRepository
	coord     *syncer.Coordinator
	presence  *syncer.Tracker
}

func NewComputerService(computers *repo.ComputerRepository, backups *repo.FolderBackupRepository, coord *syncer.Coordinator, presence *syncer.Tracker) *ComputerService {
	return &ComputerService{computers: computers, backups: backups, coord: coord, presence: presence}
}

func (s *ComputerService) Register(userID, name string) (*models.Computer, error) {
	c := &models.Computer{ID: uuid.NewString(), UserID: userID, Name: name}
	if err := s.computers.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ComputerService) FindByID(id string) (*models.Computer, error) {
	c, err := s.computers.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, syncer.ErrUnknownComputer
	}
	return c, err
}

func (s *ComputerService) ListByUser(userID string) ([]models.Computer, error) {
	return s.computers.ListByUser(userID)
}

// Authorize confirms the computer exists and belongs to the user.
func (s *ComputerService) Authorize(userID, computerID string) error {
	ok, err := s.computers.BelongsToUser(computerID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return syncer.ErrUnknownComputer
	}
	return nil
}

// Remove deletes a computer. Folders it originates disappear with it;
// folders it backs up lose one target. Coordinator and presence state go
// with the rows.
func (s *ComputerService) Remove(userID, computerID string) error {
	if err := s.Authorize(userID, computerID); err != nil {
		return err
	}
	backedUp, err := s.backups.FoldersFor(computerID)
	if err != nil {
		return err
	}
	originFolders, err := s.computers.Delete(computerID)
	if err != nil {
		return err
	}
	for _, folderID := range originFolders {
		s.coord.DropFolder(folderID)
	}
	for _, folderID := range backedUp {
		// the folder may already be gone when it originated here
		_ = s.coord.RemoveTarget(folderID, computerID)
	}
	s.presence.Forget(computerID)
	return nil
}
