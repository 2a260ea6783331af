package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

// CreateUser registers a user. A taken email fails with model.ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	m := UserModel{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translateError(err, model.ConstraintUserEmail)
	}
	return userFromModel(m), nil
}

// FindUserByEmail looks up a user by email as stored (case-sensitive).
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, bool, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return userFromModel(m), true, nil
}

// FindUserByID returns a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*model.User, bool, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return userFromModel(m), true, nil
}

func userFromModel(m UserModel) *model.User {
	return &model.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}
