package services

import (
	"errors"

	"folder-sync/backend/app/models"
	"folder-sync/backend/app/repo"
	"folder-sync/backend/app/syncer"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FolderService is the folder registry: it owns folder records, their
// backup-target links, and keeps the coordinator's runtime state aligned
// with both.
type FolderService struct {
	folders   *repo.FolderRepository
	backups   *repo.FolderBackupRepository
	computers *repo.ComputerRepository
	coord     *syncer.Coordinator
}

func NewFolderService(folders *repo.FolderRepository, backups *repo.FolderBackupRepository, computers *repo.ComputerRepository, coord *syncer.Coordinator) *FolderService {
	return &FolderService{folders: folders, backups: backups, computers: computers, coord: coord}
}

// Bootstrap reloads persisted folders into the coordinator after a restart.
// The in-memory operation log starts empty, so every backup target is
// re-obligated with a full resync.
func (s *FolderService) Bootstrap() error {
	all, err := s.folders.All()
	if err != nil {
		return err
	}
	for _, f := range all {
		s.coord.TrackFolder(f.ID)
		targets, err := s.backups.TargetsOf(f.ID)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if err := s.coord.AddTarget(f.ID, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FolderService) CreateFolder(userID, name, originComputerID string) (*models.Folder, error) {
	ok, err := s.computers.BelongsToUser(originComputerID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, syncer.ErrInvalidOrigin
	}
	// no targets yet, so nothing is outstanding
	f := &models.Folder{ID: uuid.NewString(), Name: name, OriginComputerID: originComputerID, IsSynced: true}
	if err := s.folders.Create(f); err != nil {
		return nil, err
	}
	s.coord.TrackFolder(f.ID)
	return f, nil
}

// folderForUser loads the folder and confirms the caller owns it through the
// origin computer.
func (s *FolderService) folderForUser(userID, folderID string) (*models.Folder, error) {
	f, err := s.folders.FindByID(folderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, syncer.ErrUnknownFolder
	}
	if err != nil {
		return nil, err
	}
	owner, err := s.folders.OwnerUserID(folderID)
	if err != nil {
		return nil, err
	}
	if owner != userID {
		return nil, syncer.ErrUnknownFolder
	}
	return f, nil
}

func (s *FolderService) AddBackupTarget(userID, folderID, computerID string) error {
	f, err := s.folderForUser(userID, folderID)
	if err != nil {
		return err
	}
	ok, err := s.computers.BelongsToUser(computerID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return syncer.ErrUnknownComputer
	}
	if computerID == f.OriginComputerID {
		return syncer.ErrSelfBackup
	}
	exists, err := s.backups.Exists(folderID, computerID)
	if err != nil {
		return err
	}
	if exists {
		return syncer.ErrDuplicateBackup
	}
	if err := s.backups.Add(folderID, computerID); err != nil {
		return err
	}
	return s.coord.AddTarget(folderID, computerID)
}

// RemoveBackupTarget releases a backup computer from the folder; operations
// destined solely for it are purged.
func (s *FolderService) RemoveBackupTarget(userID, folderID, computerID string) error {
	if _, err := s.folderForUser(userID, folderID); err != nil {
		return err
	}
	if err := s.backups.Remove(folderID, computerID); err != nil {
		return err
	}
	return s.coord.RemoveTarget(folderID, computerID)
}

// ReportChange accepts a change from the folder's origin computer and feeds
// the coordinator.
func (s *FolderService) ReportChange(userID, folderID, computerID string, desc syncer.Descriptor) (uint64, error) {
	f, err := s.folderForUser(userID, folderID)
	if err != nil {
		return 0, err
	}
	if f.OriginComputerID != computerID {
		return 0, syncer.ErrInvalidOrigin
	}
	return s.coord.ReportChange(folderID, desc)
}

// Acknowledge records a delivery confirmation from a backup target. The
// caller must own the folder and the acking computer; a foreign ack must
// never retire another user's pending work.
func (s *FolderService) Acknowledge(userID, folderID, computerID string, seq uint64) error {
	if _, err := s.folderForUser(userID, folderID); err != nil {
		return err
	}
	ok, err := s.computers.BelongsToUser(computerID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return syncer.ErrUnknownComputer
	}
	return s.coord.Acknowledge(folderID, computerID, seq)
}

// Status re-derives the aggregate sync state for a folder.
func (s *FolderService) Status(userID, folderID string) (syncer.Status, error) {
	if _, err := s.folderForUser(userID, folderID); err != nil {
		return syncer.Status{}, err
	}
	return s.coord.Status(folderID)
}

// IsSynced reports whether the folder has zero outstanding work across all
// its backup targets.
func (s *FolderService) IsSynced(userID, folderID string) (bool, error) {
	st, err := s.Status(userID, folderID)
	if err != nil {
		return false, err
	}
	return st.IsSynced, nil
}

func (s *FolderService) ListByUser(userID string) ([]models.Folder, error) {
	return s.folders.ListByUser(userID)
}

func (s *FolderService) ListByComputer(userID, computerID string) ([]models.Folder, error) {
	ok, err := s.computers.BelongsToUser(computerID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, syncer.ErrUnknownComputer
	}
	return s.folders.ListByComputer(computerID)
}

func (s *FolderService) Targets(folderID string) ([]string, error) {
	return s.backups.TargetsOf(folderID)
}

// SwitchOrigin promotes a backup computer to origin. Allowed only when the
// folder is fully synced; the old origin becomes a backup target and owes a
// resync of anything it diverges on from that point forward.
func (s *FolderService) SwitchOrigin(userID, folderID, newOriginID string) error {
	f, err := s.folderForUser(userID, folderID)
	if err != nil {
		return err
	}
	st, err := s.coord.Status(folderID)
	if err != nil {
		return err
	}
	if !st.IsSynced {
		return syncer.ErrNotSynced
	}
	isBackup, err := s.backups.Exists(folderID, newOriginID)
	if err != nil {
		return err
	}
	if !isBackup {
		return syncer.ErrNotBackup
	}
	oldOrigin := f.OriginComputerID
	if err := s.folders.UpdateOrigin(folderID, newOriginID); err != nil {
		return err
	}
	if err := s.backups.Remove(folderID, newOriginID); err != nil {
		return err
	}
	if err := s.coord.RemoveTarget(folderID, newOriginID); err != nil {
		return err
	}
	if err := s.backups.Add(folderID, oldOrigin); err != nil {
		return err
	}
	return s.coord.AddTarget(folderID, oldOrigin)
}
