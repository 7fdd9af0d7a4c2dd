//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/stackloop/accounts"
)

// ============================================================================
// UserStore
// ============================================================================

// UserStore implements accounts.UserStore using Google Cloud Datastore.
type UserStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewUserStore creates a new Datastore-backed UserStore.
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context.
func (s *UserStore) WithContext(ctx context.Context) *UserStore {
	return &UserStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) userKey(username string) *datastore.Key {
	return s.namespacedKey(KindUser, strings.ToLower(username))
}

func (s *UserStore) CreateUser(user *accounts.User) (*accounts.User, error) {
	// Datastore enforces only the name key. Email and Google identity
	// uniqueness is checked by query before the transactional put; a
	// race between two creates for the same email is resolved by the
	// stricter SQL backend in deployments that need it.
	if existing, err := s.queryOne(func(q *datastore.Query) *datastore.Query {
		return q.FilterField("email", "=", user.Email)
	}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("email %q: %w", user.Email, accounts.ErrConflict)
	}

	key := s.userKey(user.Username)
	stored := *user
	stored.UpdatedAt = time.Now()

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err == nil {
			return fmt.Errorf("username %q: %w", user.Username, accounts.ErrConflict)
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		_, err := tx.Put(key, UserToEntity(&stored, key))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *UserStore) GetUserByUsername(username string) (*accounts.User, error) {
	var entity UserEntity
	if err := s.client.Get(s.ctx, s.userKey(username), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) GetUserByGoogleID(googleID string) (*accounts.User, error) {
	user, err := s.queryOne(func(q *datastore.Query) *datastore.Query {
		return q.FilterField("google_id", "=", googleID)
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("google identity: %w", accounts.ErrNotFound)
	}
	return user, nil
}

func (s *UserStore) SetResetToken(username, token string, expiry time.Time) (*accounts.User, error) {
	key := s.userKey(username)
	var updated *accounts.User

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
			}
			return err
		}
		entity.ResetToken = token
		entity.ResetTokenExpiry = expiry
		entity.UpdatedAt = time.Now()
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		updated = entity.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserStore) RedeemResetToken(token, newPasswordHash string, now time.Time) (*accounts.User, error) {
	// Locate the candidate outside the transaction, then re-check the
	// token inside it so two concurrent redemptions cannot both win.
	candidate, err := s.queryOne(func(q *datastore.Query) *datastore.Query {
		return q.FilterField("reset_token", "=", token)
	})
	if err != nil {
		return nil, err
	}
	if candidate == nil || token == "" {
		return nil, fmt.Errorf("reset token: %w", accounts.ErrNotFound)
	}

	key := s.userKey(candidate.Username)
	var updated *accounts.User

	_, err = s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return fmt.Errorf("reset token: %w", accounts.ErrNotFound)
			}
			return err
		}
		if entity.ResetToken != token || !entity.ResetTokenExpiry.After(now) {
			return fmt.Errorf("reset token: %w", accounts.ErrNotFound)
		}
		entity.PasswordHash = newPasswordHash
		entity.ResetToken = ""
		entity.ResetTokenExpiry = time.Time{}
		entity.UpdatedAt = time.Now()
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		updated = entity.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserStore) UpdateSetting(username string, field accounts.SettingField, value string) (*accounts.User, error) {
	key := s.userKey(username)
	var updated *accounts.User

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
			}
			return err
		}

		var settings accounts.Settings
		if len(entity.Settings) > 0 {
			if err := json.Unmarshal(entity.Settings, &settings); err != nil {
				return err
			}
		}
		if err := settings.Apply(field, value); err != nil {
			return err
		}
		entity.Settings, _ = json.Marshal(&settings)
		entity.UpdatedAt = time.Now()
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		updated = entity.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// queryOne runs a filtered user query and returns the first match, or
// nil when nothing matched.
func (s *UserStore) queryOne(filter func(*datastore.Query) *datastore.Query) (*accounts.User, error) {
	query := filter(datastore.NewQuery(KindUser)).Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(s.ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

// ============================================================================
// UnverifiedUserStore
// ============================================================================

// UnverifiedUserStore implements accounts.UnverifiedUserStore using
// Google Cloud Datastore.
type UnverifiedUserStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewUnverifiedUserStore creates a new Datastore-backed UnverifiedUserStore.
func NewUnverifiedUserStore(client *datastore.Client, namespace string) *UnverifiedUserStore {
	return &UnverifiedUserStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context.
func (s *UnverifiedUserStore) WithContext(ctx context.Context) *UnverifiedUserStore {
	return &UnverifiedUserStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *UnverifiedUserStore) tokenKey(token string) *datastore.Key {
	key := datastore.NameKey(KindUnverifiedUser, token, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UnverifiedUserStore) CreateUnverified(user *accounts.UnverifiedUser) error {
	key := s.tokenKey(user.VerificationToken)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UnverifiedUserEntity
		if err := tx.Get(key, &entity); err == nil {
			return fmt.Errorf("verification token: %w", accounts.ErrConflict)
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		_, err := tx.Put(key, UnverifiedUserToEntity(user, key))
		return err
	})
	return err
}

func (s *UnverifiedUserStore) TakeByToken(token string, now time.Time) (*accounts.UnverifiedUser, error) {
	key := s.tokenKey(token)
	var taken *accounts.UnverifiedUser

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity UnverifiedUserEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return fmt.Errorf("verification token: %w", accounts.ErrNotFound)
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		if !entity.VerificationExpiry.After(now) {
			return fmt.Errorf("verification token: %w", accounts.ErrNotFound)
		}
		taken = entity.ToUnverifiedUser(token)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *UnverifiedUserStore) DeleteExpired(now time.Time) error {
	query := datastore.NewQuery(KindUnverifiedUser).
		FilterField("verification_expiry", "<=", now).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var keys []*datastore.Key
	it := s.client.Run(s.ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(s.ctx, keys)
}
