//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/stackloop/accounts"
)

// Kind constants for Datastore entities
const (
	KindUser           = "User"
	KindUnverifiedUser = "UnverifiedUser"
)

// UserEntity is the Datastore entity for activated accounts.
// Key name: username (lowercased), which gives username uniqueness for
// free via the name key.
type UserEntity struct {
	Key              *datastore.Key `datastore:"__key__"`
	ID               string         `datastore:"id"`
	Username         string         `datastore:"username"`
	Email            string         `datastore:"email"`
	PasswordHash     string         `datastore:"password_hash,noindex"`
	GoogleID         string         `datastore:"google_id"`
	Settings         []byte         `datastore:"settings,noindex"` // JSON encoded
	ResetToken       string         `datastore:"reset_token"`
	ResetTokenExpiry time.Time      `datastore:"reset_token_expiry,noindex"`
	CreatedAt        time.Time      `datastore:"created_at"`
	UpdatedAt        time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *accounts.User {
	user := &accounts.User{
		ID:               e.ID,
		Username:         e.Username,
		Email:            e.Email,
		PasswordHash:     e.PasswordHash,
		GoogleID:         e.GoogleID,
		ResetToken:       e.ResetToken,
		ResetTokenExpiry: e.ResetTokenExpiry,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
	if len(e.Settings) > 0 {
		var settings accounts.Settings
		if err := json.Unmarshal(e.Settings, &settings); err == nil {
			user.Settings = &settings
		}
	}
	return user
}

func UserToEntity(u *accounts.User, key *datastore.Key) *UserEntity {
	entity := &UserEntity{
		Key:              key,
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		GoogleID:         u.GoogleID,
		ResetToken:       u.ResetToken,
		ResetTokenExpiry: u.ResetTokenExpiry,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.Settings != nil {
		entity.Settings, _ = json.Marshal(u.Settings)
	}
	return entity
}

// UnverifiedUserEntity is the Datastore entity for pending
// registrations. Key name: verification token.
type UnverifiedUserEntity struct {
	Key                *datastore.Key `datastore:"__key__"`
	Username           string         `datastore:"username"`
	Email              string         `datastore:"email"`
	PasswordHash       string         `datastore:"password_hash,noindex"`
	VerificationExpiry time.Time      `datastore:"verification_expiry"`
	CreatedAt          time.Time      `datastore:"created_at"`
}

func (e *UnverifiedUserEntity) ToUnverifiedUser(token string) *accounts.UnverifiedUser {
	return &accounts.UnverifiedUser{
		Username:           e.Username,
		Email:              e.Email,
		PasswordHash:       e.PasswordHash,
		VerificationToken:  token,
		VerificationExpiry: e.VerificationExpiry,
		CreatedAt:          e.CreatedAt,
	}
}

func UnverifiedUserToEntity(u *accounts.UnverifiedUser, key *datastore.Key) *UnverifiedUserEntity {
	return &UnverifiedUserEntity{
		Key:                key,
		Username:           u.Username,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		VerificationExpiry: u.VerificationExpiry,
		CreatedAt:          u.CreatedAt,
	}
}
