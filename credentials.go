package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SignupRequest carries the primitive inputs of a registration attempt.
type SignupRequest struct {
	Username string
	Email    string
	Password string
}

// SignupValidator validates a registration request before any store
// access happens.
type SignupValidator func(req *SignupRequest) error

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// DefaultSignupValidator provides sensible default validation for signup.
var DefaultSignupValidator SignupValidator = func(req *SignupRequest) error {
	if len(req.Username) < 3 || len(req.Username) > 20 {
		return NewAuthError(ErrCodeInvalidUsername, "Username must be 3-20 characters", "username")
	}
	if !usernameRegex.MatchString(req.Username) {
		return NewAuthError(ErrCodeInvalidUsername, "Username can only contain letters, numbers, underscores, and hyphens", "username")
	}
	if req.Email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(req.Email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	if len(req.Password) < 8 {
		return NewAuthError(ErrCodeWeakPassword, "Password must be at least 8 characters", "password")
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored bcrypt
// digest. Returns bcrypt.ErrMismatchedHashAndPassword on mismatch; any
// other error is a mechanical failure of the comparison itself.
func CheckPassword(plaintext, passwordHash string) error {
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(plaintext))
}

// DeriveUsername derives a username for an externally-authenticated
// account from the email's local part plus a short random
// discriminator. The result is not guaranteed unique; callers rely on
// the store's conflict signal and retry with a fresh derivation.
func DeriveUsername(email string) (string, error) {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range local {
		if usernameRegex.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) > 14 {
		base = base[:14]
	}
	if base == "" {
		base = "user"
	}

	disc := make([]byte, 2)
	if _, err := rand.Read(disc); err != nil {
		return "", fmt.Errorf("failed to generate username discriminator: %w", err)
	}
	return base + "-" + hex.EncodeToString(disc), nil
}

// RandomPasswordHash produces a placeholder password hash for accounts
// that can only authenticate through an external provider. The digest
// of random bytes is hashed, so no plaintext can ever match it in
// practice.
func RandomPasswordHash() (string, error) {
	token, err := GenerateSecureToken()
	if err != nil {
		return "", err
	}
	return HashPassword(Digest(token))
}
