package services

import (
	"errors"

	"folder-sync/backend/app/models"
	"folder-sync/backend/app/repo"
	"folder-sync/backend/app/syncer"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNameTaken          = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type UserService struct {
	users     *repo.UserRepository
	computers *repo.ComputerRepository
	coord     *syncer.Coordinator
	presence  *syncer.Tracker
}

func NewUserService(users *repo.UserRepository, computers *repo.ComputerRepository, coord *syncer.Coordinator, presence *syncer.Tracker) *UserService {
	return &UserService{users: users, computers: computers, coord: coord, presence: presence}
}

func (s *UserService) Register(name, password string) (*models.User, error) {
	count, err := s.users.CountByName(name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrNameTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{ID: uuid.NewString(), Name: name, PasswordHash: string(hash)}
	if err := s.users.Create(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) ValidateCredentials(name, password string) (*models.User, error) {
	u, err := s.users.FindByName(name)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Delete removes a user and cascades through computers, folders and backup
// links, tearing down the matching coordinator state.
func (s *UserService) Delete(userID string) error {
	computers, err := s.computers.ListByUser(userID)
	if err != nil {
		return err
	}
	folderIDs, err := s.users.Delete(userID)
	if err != nil {
		return err
	}
	for _, id := range folderIDs {
		s.coord.DropFolder(id)
	}
	for _, c := range computers {
		s.presence.Forget(c.ID)
	}
	return nil
}
