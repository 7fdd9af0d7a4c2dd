//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stackloop/accounts"
)

// AutoMigrate runs database migrations for the account tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&UnverifiedUserModel{},
	)
}

// isDuplicateKey reports whether err is a uniqueness violation. Not
// every dialect translates to gorm.ErrDuplicatedKey, so fall back to
// matching the driver message.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// UserStore implements accounts.UserStore using GORM.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(user *accounts.User) (*accounts.User, error) {
	model := UserToModel(user)
	if err := s.db.Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("create user: %w", accounts.ErrConflict)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByUsername(username string) (*accounts.User, error) {
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) GetUserByGoogleID(googleID string) (*accounts.User, error) {
	var model UserModel
	if err := s.db.First(&model, "google_id = ?", googleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("google identity: %w", accounts.ErrNotFound)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) SetResetToken(username, token string, expiry time.Time) (*accounts.User, error) {
	var updated *accounts.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&UserModel{}).
			Where("username = ?", username).
			Updates(map[string]any{
				"reset_token":        token,
				"reset_token_expiry": expiry,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
		}

		var model UserModel
		if err := tx.First(&model, "username = ?", username).Error; err != nil {
			return err
		}
		updated = model.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserStore) RedeemResetToken(token, newPasswordHash string, now time.Time) (*accounts.User, error) {
	var updated *accounts.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "reset_token = ? AND reset_token_expiry > ?", token, now).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reset token: %w", accounts.ErrNotFound)
			}
			return err
		}

		if err := tx.Model(&model).Updates(map[string]any{
			"password_hash":      newPasswordHash,
			"reset_token":        nil,
			"reset_token_expiry": nil,
		}).Error; err != nil {
			return err
		}

		model.PasswordHash = newPasswordHash
		model.ResetToken = nil
		model.ResetTokenExpiry = nil
		updated = model.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserStore) UpdateSetting(username string, field accounts.SettingField, value string) (*accounts.User, error) {
	var updated *accounts.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "username = ?", username).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
			}
			return err
		}

		settings := accounts.Settings{}
		if model.Settings != nil {
			settings = accounts.Settings(*model.Settings)
		}
		if err := settings.Apply(field, value); err != nil {
			return err
		}
		column := SettingsColumn(settings)
		model.Settings = &column

		if err := tx.Model(&model).Update("settings", &column).Error; err != nil {
			return err
		}
		updated = model.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UnverifiedUserStore implements accounts.UnverifiedUserStore using GORM.
type UnverifiedUserStore struct {
	db *gorm.DB
}

func NewUnverifiedUserStore(db *gorm.DB) *UnverifiedUserStore {
	return &UnverifiedUserStore{db: db}
}

func (s *UnverifiedUserStore) CreateUnverified(user *accounts.UnverifiedUser) error {
	if err := s.db.Create(UnverifiedUserToModel(user)).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("create unverified user: %w", accounts.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *UnverifiedUserStore) TakeByToken(token string, now time.Time) (*accounts.UnverifiedUser, error) {
	var taken *accounts.UnverifiedUser
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model UnverifiedUserModel
		if err := tx.First(&model, "verification_token = ? AND verification_expiry > ?", token, now).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("verification token: %w", accounts.ErrNotFound)
			}
			return err
		}
		if err := tx.Delete(&model).Error; err != nil {
			return err
		}
		taken = model.ToUnverifiedUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *UnverifiedUserStore) DeleteExpired(now time.Time) error {
	return s.db.Delete(&UnverifiedUserModel{}, "verification_expiry <= ?", now).Error
}
