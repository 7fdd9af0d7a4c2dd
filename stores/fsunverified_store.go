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

// FSUnverifiedUserStore stores pending registrations as JSON files, one
// per verification token.
type FSUnverifiedUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUnverifiedUserStore(storagePath string) *FSUnverifiedUserStore {
	return &FSUnverifiedUserStore{StoragePath: storagePath}
}

func (s *FSUnverifiedUserStore) tokenPath(token string) string {
	return filepath.Join(s.StoragePath, "unverified", token+".json")
}

func (s *FSUnverifiedUserStore) CreateUnverified(user *accounts.UnverifiedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.tokenPath(user.VerificationToken)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("verification token: %w", accounts.ErrConflict)
	}

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSUnverifiedUserStore) TakeByToken(token string, now time.Time) (*accounts.UnverifiedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.tokenPath(token)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("verification token: %w", accounts.ErrNotFound)
		}
		return nil, err
	}

	var user accounts.UnverifiedUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}

	// Consumed either way: an expired record is as dead as a missing one.
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	if !user.VerificationExpiry.After(now) {
		return nil, fmt.Errorf("verification token: %w", accounts.ErrNotFound)
	}
	return &user, nil
}

func (s *FSUnverifiedUserStore) DeleteExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.StoragePath, "unverified")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var user accounts.UnverifiedUser
		if err := json.Unmarshal(data, &user); err != nil {
			continue
		}
		if !user.VerificationExpiry.After(now) {
			os.Remove(path)
		}
	}
	return nil
}
