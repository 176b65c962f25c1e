package stores

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/nestpost/nestpost/models"
	"github.com/nestpost/nestpost/utils"
)

// UserStore persists users and verifies credentials.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a UserStore bound to the given database handle.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Register creates a user with a bcrypt hash of the password and returns the
// new id. A taken username fails with ErrDuplicateUsername without touching
// existing state.
func (s *UserStore) Register(username, password string) (uint, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrValidation
	}

	var existing models.User
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return 0, ErrDuplicateUsername
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return 0, err
	}

	user := models.User{Username: username, PasswordHash: hash}
	if err := s.db.Create(&user).Error; err != nil {
		// Lost a race with a concurrent registration for the same name.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrDuplicateUsername
		}
		return 0, err
	}
	return user.ID, nil
}

// Verify returns the user matching username and password, or nil when either
// the username is unknown or the password is wrong. The two cases are
// deliberately indistinguishable so callers cannot enumerate usernames.
func (s *UserStore) Verify(username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, nil
	}
	return &user, nil
}

// Lookup materializes the user referenced by a token's identity claims.
func (s *UserStore) Lookup(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}
