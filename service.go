package accounts

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// How many usernames to derive for a new Google-linked account before
// giving up on conflicts.
const maxUsernameDerivations = 3

// Service implements the account lifecycle: registration with email
// verification, login, password reset, Google account linking, and
// per-user settings mutation.
//
// Every operation is a single logical unit of work: a short sequence of
// store and utility calls, one result out. Mutations that must not race
// a concurrent duplicate request (token redemption, reset issuance) are
// delegated to the store's atomic conditional operations.
//
// Errors returned by operations are always *AuthError. Mechanical
// backend failures are logged and mapped to a generic per-operation
// message; internal error text never reaches the caller.
type Service struct {
	Users      UserStore
	Unverified UnverifiedUserStore

	// EmailSender delivers verification and reset emails.
	EmailSender EmailSender

	// BaseURL prefixes verification and reset links, e.g.
	// "https://example.com".
	BaseURL string

	// ValidateSignup validates registration input. Defaults to
	// DefaultSignupValidator when nil.
	ValidateSignup SignupValidator
}

// NewService wires a Service from its collaborators.
func NewService(users UserStore, unverified UnverifiedUserStore, sender EmailSender, baseURL string) *Service {
	return &Service{
		Users:       users,
		Unverified:  unverified,
		EmailSender: sender,
		BaseURL:     baseURL,
	}
}

// RequestVerification starts a registration. It checks the username is
// free, stores a pending registration keyed by a fresh verification
// token, and emails a verification link. Nothing durable exists until
// the pending record is created; a mail failure after that point is
// reported but leaves the record in place, since it expires on its own.
//
// Returns the recipient address on success.
func (s *Service) RequestVerification(req *SignupRequest) (string, error) {
	validate := s.ValidateSignup
	if validate == nil {
		validate = DefaultSignupValidator
	}
	if err := validate(req); err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return "", authErr
		}
		return "", NewAuthError(ErrCodeMissingField, err.Error(), "")
	}

	_, err := s.Users.GetUserByUsername(req.Username)
	if err == nil {
		return "", NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username")
	}
	if !errors.Is(err, ErrNotFound) {
		log.Println("error looking up username: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error registering user", "")
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		log.Println("error hashing password: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error registering user", "")
	}

	token, err := GenerateSecureToken()
	if err != nil {
		log.Println("error generating verification token: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error registering user", "")
	}

	now := time.Now()
	pending := &UnverifiedUser{
		Username:           req.Username,
		Email:              req.Email,
		PasswordHash:       passwordHash,
		VerificationToken:  token,
		VerificationExpiry: now.Add(TokenExpiryEmailVerification),
		CreatedAt:          now,
	}
	if err := s.Unverified.CreateUnverified(pending); err != nil {
		log.Println("error creating unverified user: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error registering user", "")
	}

	verificationLink := fmt.Sprintf("%s/auth/verify-email?token=%s", s.BaseURL, token)
	if err := s.EmailSender.SendVerificationEmail(req.Email, verificationLink); err != nil {
		log.Println("error sending verification email: ", err)
		return "", NewAuthError(ErrCodeEmailFailed, "Error sending verification email", "email")
	}

	return req.Email, nil
}

// ActivateUser completes a registration. The pending record is consumed
// atomically, so a second activation with the same token fails even
// when the two clicks race. A duplicate-key failure on the create means
// another registration for the same username won the race.
func (s *Service) ActivateUser(token string) (*User, error) {
	pending, err := s.Unverified.TakeByToken(token, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(ErrCodeTokenInvalid, "Token invalid or expired", "token")
		}
		log.Println("error consuming verification token: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error creating user", "")
	}

	user, err := s.Users.CreateUser(&User{
		ID:           generateUserID(),
		Username:     pending.Username,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		CreatedAt:    pending.CreatedAt,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username")
		}
		log.Println("error creating user: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error creating user", "")
	}
	return user, nil
}

// Login authenticates a username/password pair and returns the account.
// Callers must not pass the password hash downstream.
func (s *Service) Login(username, password string) (*User, error) {
	user, err := s.Users.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(ErrCodeUnknownUsername, "Username does not exist", "username")
		}
		log.Println("error looking up user: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error logging in", "")
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, NewAuthError(ErrCodeIncorrectPassword, "Incorrect password", "password")
		}
		log.Println("error comparing password: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error logging in", "")
	}

	return user, nil
}

// RequestPasswordReset issues a reset token for the named user and
// emails a reset link. The token and expiry are written in one atomic
// update. Returns the recipient address on success.
func (s *Service) RequestPasswordReset(username string) (string, error) {
	token, err := GenerateSecureToken()
	if err != nil {
		log.Println("error generating reset token: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error requesting password reset", "")
	}

	user, err := s.Users.SetResetToken(username, token, time.Now().Add(TokenExpiryPasswordReset))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", NewAuthError(ErrCodeUnknownUsername, "Username does not exist", "username")
		}
		log.Println("error storing reset token: ", err)
		return "", NewAuthError(ErrCodeInternal, "Error requesting password reset", "")
	}

	resetLink := fmt.Sprintf("%s/auth/reset-password?token=%s", s.BaseURL, token)
	if err := s.EmailSender.SendPasswordResetEmail(user.Email, resetLink); err != nil {
		log.Println("error sending password reset email: ", err)
		return "", NewAuthError(ErrCodeEmailFailed, "Error sending password reset email", "email")
	}

	return user.Email, nil
}

// ResetPassword redeems a reset token and installs a new password. The
// new password is hashed before any store access; redemption matches
// only a live token and clears the reset fields in the same atomic
// update, so a token cannot be redeemed twice.
func (s *Service) ResetPassword(token, newPassword string) (*User, error) {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		log.Println("error hashing new password: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error resetting password", "")
	}

	user, err := s.Users.RedeemResetToken(token, passwordHash, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(ErrCodeTokenInvalid, "Token invalid or expired", "token")
		}
		log.Println("error redeeming reset token: ", err)
		return nil, NewAuthError(ErrCodeInternal, "Error resetting password", "")
	}
	return user, nil
}

// FindOrCreateGoogleUser returns the account linked to a Google
// identity, creating one on first login. New accounts get a derived
// username and a placeholder password hash; Google is their only login
// path. All sub-failures collapse to a single generic message.
//
// Called twice with the same identity it returns the same account both
// times and creates at most one record.
func (s *Service) FindOrCreateGoogleUser(googleID, email string) (*User, error) {
	user, err := s.Users.GetUserByGoogleID(googleID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		log.Println("error looking up google user: ", err)
		return nil, newGoogleUserError()
	}

	passwordHash, err := RandomPasswordHash()
	if err != nil {
		log.Println("error deriving placeholder password: ", err)
		return nil, newGoogleUserError()
	}

	// Derived usernames can collide. Retry with a fresh discriminator
	// a few times before giving up.
	for attempt := 0; attempt < maxUsernameDerivations; attempt++ {
		username, err := DeriveUsername(email)
		if err != nil {
			log.Println("error deriving username: ", err)
			return nil, newGoogleUserError()
		}

		user, err = s.Users.CreateUser(&User{
			ID:           generateUserID(),
			Username:     username,
			Email:        email,
			PasswordHash: passwordHash,
			GoogleID:     googleID,
			CreatedAt:    time.Now(),
		})
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrConflict) {
			log.Println("error creating google user: ", err)
			return nil, newGoogleUserError()
		}
	}

	log.Printf("could not derive a free username for %s after %d attempts", email, maxUsernameDerivations)
	return nil, newGoogleUserError()
}

func newGoogleUserError() *AuthError {
	return NewAuthError(ErrCodeInternal, "Error retrieving or creating a Google user", "")
}

// ChangeTheme updates the user's theme preference.
func (s *Service) ChangeTheme(username, value string) (*User, error) {
	return s.changeSetting(username, SettingTheme, value)
}

// ChangeTextSize updates the user's text size preference.
func (s *Service) ChangeTextSize(username, value string) (*User, error) {
	return s.changeSetting(username, SettingTextSize, value)
}

// ChangeTextBoldness updates the user's text boldness preference.
func (s *Service) ChangeTextBoldness(username, value string) (*User, error) {
	return s.changeSetting(username, SettingTextBoldness, value)
}

// ChangeFont updates the user's font preference.
func (s *Service) ChangeFont(username, value string) (*User, error) {
	return s.changeSetting(username, SettingFont, value)
}

// ChangeLineSpacing updates the user's line spacing preference.
func (s *Service) ChangeLineSpacing(username, value string) (*User, error) {
	return s.changeSetting(username, SettingLineSpacing, value)
}

// ChangeBackgroundColor updates the user's background color preference.
func (s *Service) ChangeBackgroundColor(username, value string) (*User, error) {
	return s.changeSetting(username, SettingBackgroundColor, value)
}

// ChangeTextColor updates the user's text color preference.
func (s *Service) ChangeTextColor(username, value string) (*User, error) {
	return s.changeSetting(username, SettingTextColor, value)
}

// ChangeButtonColor updates the user's button color preference.
func (s *Service) ChangeButtonColor(username, value string) (*User, error) {
	return s.changeSetting(username, SettingButtonColor, value)
}

// changeSetting is the shared settings mutation: one atomic nested
// update per call. Mutations of different fields for the same user are
// order-independent; concurrent writes to the same field are
// last-write-wins at the store.
func (s *Service) changeSetting(username string, field SettingField, value string) (*User, error) {
	user, err := s.Users.UpdateSetting(username, field, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewAuthError(ErrCodeUnknownUsername, "Username does not exist", "username")
		}
		log.Printf("error changing user %s: %v", field, err)
		return nil, NewAuthError(ErrCodeInternal, fmt.Sprintf("Error changing user %s", field), "")
	}
	return user, nil
}
