package stores

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stackloop/accounts"
)

// FSUserStore stores activated users as JSON files, one per username.
// A process-wide mutex makes the conditional mutations atomic, which is
// all the single-process deployments this backend targets need.
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(username string) string {
	return filepath.Join(s.StoragePath, "users", strings.ToLower(username)+".json")
}

func (s *FSUserStore) CreateUser(user *accounts.User) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.userPath(user.Username)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("username %q: %w", user.Username, accounts.ErrConflict)
	}

	// Email and Google identity are unique too; scan the other records.
	conflict, err := s.findLocked(func(u *accounts.User) bool {
		return u.Email == user.Email || (user.GoogleID != "" && u.GoogleID == user.GoogleID)
	})
	if err != nil && err != errNoMatch {
		return nil, err
	}
	if conflict != nil {
		return nil, fmt.Errorf("email %q: %w", user.Email, accounts.ErrConflict)
	}

	stored := *user
	stored.UpdatedAt = time.Now()
	if err := s.saveLocked(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *FSUserStore) GetUserByUsername(username string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(username)
}

func (s *FSUserStore) GetUserByGoogleID(googleID string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.findLocked(func(u *accounts.User) bool { return u.GoogleID == googleID })
	if err == errNoMatch {
		return nil, fmt.Errorf("google identity: %w", accounts.ErrNotFound)
	}
	return user, err
}

func (s *FSUserStore) SetResetToken(username, token string, expiry time.Time) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.loadLocked(username)
	if err != nil {
		return nil, err
	}
	user.ResetToken = token
	user.ResetTokenExpiry = expiry
	user.UpdatedAt = time.Now()
	if err := s.saveLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *FSUserStore) RedeemResetToken(token, newPasswordHash string, now time.Time) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.findLocked(func(u *accounts.User) bool {
		return u.ResetToken == token && token != "" && u.ResetTokenExpiry.After(now)
	})
	if err == errNoMatch {
		return nil, fmt.Errorf("reset token: %w", accounts.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	user.PasswordHash = newPasswordHash
	user.ResetToken = ""
	user.ResetTokenExpiry = time.Time{}
	user.UpdatedAt = time.Now()
	if err := s.saveLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *FSUserStore) UpdateSetting(username string, field accounts.SettingField, value string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.loadLocked(username)
	if err != nil {
		return nil, err
	}
	if user.Settings == nil {
		user.Settings = &accounts.Settings{}
	}
	if err := user.Settings.Apply(field, value); err != nil {
		return nil, err
	}
	user.UpdatedAt = time.Now()
	if err := s.saveLocked(user); err != nil {
		return nil, err
	}
	return user, nil
}

// errNoMatch distinguishes "scanned everything, nothing matched" from a
// real read failure inside findLocked.
var errNoMatch = fmt.Errorf("no match")

func (s *FSUserStore) loadLocked(username string) (*accounts.User, error) {
	data, err := os.ReadFile(s.userPath(username))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("username %q: %w", username, accounts.ErrNotFound)
		}
		return nil, err
	}
	var user accounts.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *FSUserStore) saveLocked(user *accounts.User) error {
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.userPath(user.Username), data)
}

func (s *FSUserStore) findLocked(match func(*accounts.User) bool) (*accounts.User, error) {
	dir := filepath.Join(s.StoragePath, "users")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoMatch
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var user accounts.User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, err
		}
		if match(&user) {
			return &user, nil
		}
	}
	return nil, errNoMatch
}
