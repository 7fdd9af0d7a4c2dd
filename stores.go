package accounts

import (
	"errors"
	"fmt"
	"time"
)

// Store failure kinds. Store implementations translate their backend's
// native errors into these so the service layer never inspects
// driver-specific error text.
var (
	// ErrNotFound means the predicate matched no record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a create or update violated a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

// User is an activated account. Username and Email are each globally
// unique. PasswordHash is a bcrypt digest, never the plaintext.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	GoogleID     string    `json:"google_id,omitempty"`
	Settings     *Settings `json:"settings,omitempty"`

	// Reset fields are set by RequestPasswordReset and cleared when
	// the token is redeemed.
	ResetToken       string    `json:"reset_token,omitempty"`
	ResetTokenExpiry time.Time `json:"reset_token_expiry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UnverifiedUser is a pending registration, keyed by its verification
// token. It is consumed on activation or left to expire.
type UnverifiedUser struct {
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"password_hash"`
	VerificationToken  string    `json:"verification_token"`
	VerificationExpiry time.Time `json:"verification_expiry"`
	CreatedAt          time.Time `json:"created_at"`
}

// Settings holds a user's display preferences. Fields are mutated one
// at a time and absent until first set.
type Settings struct {
	Theme           string `json:"theme,omitempty"`
	TextSize        string `json:"text_size,omitempty"`
	TextBoldness    string `json:"text_boldness,omitempty"`
	Font            string `json:"font,omitempty"`
	LineSpacing     string `json:"line_spacing,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
	ButtonColor     string `json:"button_color,omitempty"`
}

// SettingField names one mutable field of Settings.
type SettingField string

const (
	SettingTheme           SettingField = "theme"
	SettingTextSize        SettingField = "text size"
	SettingTextBoldness    SettingField = "text boldness"
	SettingFont            SettingField = "font"
	SettingLineSpacing     SettingField = "line spacing"
	SettingBackgroundColor SettingField = "background color"
	SettingTextColor       SettingField = "text color"
	SettingButtonColor     SettingField = "button color"
)

// Apply sets the named field to value.
func (s *Settings) Apply(field SettingField, value string) error {
	switch field {
	case SettingTheme:
		s.Theme = value
	case SettingTextSize:
		s.TextSize = value
	case SettingTextBoldness:
		s.TextBoldness = value
	case SettingFont:
		s.Font = value
	case SettingLineSpacing:
		s.LineSpacing = value
	case SettingBackgroundColor:
		s.BackgroundColor = value
	case SettingTextColor:
		s.TextColor = value
	case SettingButtonColor:
		s.ButtonColor = value
	default:
		return fmt.Errorf("unknown setting field: %s", field)
	}
	return nil
}

// UserStore manages activated accounts.
//
// Conditional mutations (SetResetToken, RedeemResetToken, UpdateSetting)
// must be atomic at the store: a single find-and-update, never a read
// followed by a separate write. Concurrent duplicate requests are
// resolved by the backing store, not by callers.
type UserStore interface {
	// CreateUser persists a new user. Returns ErrConflict if the
	// username or email is already taken.
	CreateUser(user *User) (*User, error)

	// GetUserByUsername returns the user with the given username, or
	// ErrNotFound.
	GetUserByUsername(username string) (*User, error)

	// GetUserByGoogleID returns the user linked to the given Google
	// identity, or ErrNotFound.
	GetUserByGoogleID(googleID string) (*User, error)

	// SetResetToken atomically sets the reset token and expiry on the
	// user with the given username. Returns the updated user, or
	// ErrNotFound.
	SetResetToken(username, token string, expiry time.Time) (*User, error)

	// RedeemResetToken atomically finds the user holding a live
	// (unexpired as of now) reset token, replaces the password hash,
	// and clears the reset fields. A missing, consumed, or expired
	// token is ErrNotFound.
	RedeemResetToken(token, newPasswordHash string, now time.Time) (*User, error)

	// UpdateSetting atomically updates one settings field on the user
	// with the given username. Returns the updated user, or ErrNotFound.
	UpdateSetting(username string, field SettingField, value string) (*User, error)
}

// UnverifiedUserStore manages pending registrations, keyed by
// verification token.
type UnverifiedUserStore interface {
	// CreateUnverified persists a pending registration.
	CreateUnverified(user *UnverifiedUser) error

	// TakeByToken atomically finds and deletes the pending
	// registration for the given token. A token that is missing,
	// already consumed, or expired as of now is ErrNotFound; the two
	// conditions are deliberately indistinguishable to callers.
	TakeByToken(token string, now time.Time) (*UnverifiedUser, error)

	// DeleteExpired removes pending registrations whose expiry has
	// passed (for maintenance).
	DeleteExpired(now time.Time) error
}
