//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/stackloop/accounts"
)

// SettingsColumn stores the settings record as a JSON column.
type SettingsColumn accounts.Settings

func (s *SettingsColumn) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *SettingsColumn) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, s)
}

// UserModel is the GORM model for activated accounts.
type UserModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	Username     string          `gorm:"uniqueIndex;size:64"`
	Email        string          `gorm:"uniqueIndex;size:255"`
	PasswordHash string          `gorm:"size:128"`
	GoogleID     *string         `gorm:"uniqueIndex;size:64"`
	Settings     *SettingsColumn `gorm:"type:jsonb"`

	ResetToken       *string `gorm:"index;size:128"`
	ResetTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *accounts.User {
	user := &accounts.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.GoogleID != nil {
		user.GoogleID = *m.GoogleID
	}
	if m.Settings != nil {
		settings := accounts.Settings(*m.Settings)
		user.Settings = &settings
	}
	if m.ResetToken != nil {
		user.ResetToken = *m.ResetToken
	}
	if m.ResetTokenExpiry != nil {
		user.ResetTokenExpiry = *m.ResetTokenExpiry
	}
	return user
}

func UserToModel(u *accounts.User) *UserModel {
	model := &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.GoogleID != "" {
		model.GoogleID = &u.GoogleID
	}
	if u.Settings != nil {
		settings := SettingsColumn(*u.Settings)
		model.Settings = &settings
	}
	if u.ResetToken != "" {
		model.ResetToken = &u.ResetToken
	}
	if !u.ResetTokenExpiry.IsZero() {
		expiry := u.ResetTokenExpiry
		model.ResetTokenExpiry = &expiry
	}
	return model
}

// UnverifiedUserModel is the GORM model for pending registrations.
type UnverifiedUserModel struct {
	VerificationToken  string    `gorm:"primaryKey;size:128"`
	Username           string    `gorm:"size:64;index"`
	Email              string    `gorm:"size:255"`
	PasswordHash       string    `gorm:"size:128"`
	VerificationExpiry time.Time `gorm:"index"`
	CreatedAt          time.Time
}

func (UnverifiedUserModel) TableName() string {
	return "unverified_users"
}

func (m *UnverifiedUserModel) ToUnverifiedUser() *accounts.UnverifiedUser {
	return &accounts.UnverifiedUser{
		Username:           m.Username,
		Email:              m.Email,
		PasswordHash:       m.PasswordHash,
		VerificationToken:  m.VerificationToken,
		VerificationExpiry: m.VerificationExpiry,
		CreatedAt:          m.CreatedAt,
	}
}

func UnverifiedUserToModel(u *accounts.UnverifiedUser) *UnverifiedUserModel {
	return &UnverifiedUserModel{
		VerificationToken:  u.VerificationToken,
		Username:           u.Username,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		VerificationExpiry: u.VerificationExpiry,
		CreatedAt:          u.CreatedAt,
	}
}
