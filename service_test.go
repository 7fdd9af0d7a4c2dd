package accounts_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stackloop/accounts"
	"github.com/stackloop/accounts/stores"
)

// capturingEmailSender records the last message per type and can be
// told to fail the next send.
type capturingEmailSender struct {
	verificationTo   string
	verificationLink string
	resetTo          string
	resetLink        string
	failNext         bool
}

func (c *capturingEmailSender) SendVerificationEmail(to, link string) error {
	c.verificationTo = to
	c.verificationLink = link
	if c.failNext {
		c.failNext = false
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

func (c *capturingEmailSender) SendPasswordResetEmail(to, link string) error {
	c.resetTo = to
	c.resetLink = link
	if c.failNext {
		c.failNext = false
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

type testEnv struct {
	svc        *accounts.Service
	sender     *capturingEmailSender
	users      *stores.FSUserStore
	unverified *stores.FSUnverifiedUserStore
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		sender:     &capturingEmailSender{},
		users:      stores.NewFSUserStore(dir),
		unverified: stores.NewFSUnverifiedUserStore(dir),
	}
	env.svc = accounts.NewService(env.users, env.unverified, env.sender, "http://localhost:8080")
	return env
}

// linkToken extracts the token query value from an emailed link.
func linkToken(t *testing.T, link string) string {
	t.Helper()
	idx := strings.Index(link, "token=")
	if idx < 0 {
		t.Fatalf("link %q carries no token", link)
	}
	return link[idx+len("token="):]
}

func mustRegister(t *testing.T, env *testEnv, username, email, password string) *accounts.User {
	t.Helper()
	recipient, err := env.svc.RequestVerification(&accounts.SignupRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("RequestVerification(%s) failed: %v", username, err)
	}
	if recipient != email {
		t.Fatalf("expected recipient %q, got %q", email, recipient)
	}
	user, err := env.svc.ActivateUser(linkToken(t, env.sender.verificationLink))
	if err != nil {
		t.Fatalf("ActivateUser(%s) failed: %v", username, err)
	}
	return user
}

func assertAuthError(t *testing.T, err error, wantCode string) *accounts.AuthError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected auth error with code %q, got nil", wantCode)
	}
	var authErr *accounts.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if authErr.Code != wantCode {
		t.Fatalf("expected code %q, got %q (%s)", wantCode, authErr.Code, authErr.Message)
	}
	return authErr
}

func TestRegistrationJourney(t *testing.T) {
	env := setupService(t)

	recipient, err := env.svc.RequestVerification(&accounts.SignupRequest{
		Username: "fakeUser",
		Email:    "fakeEmail@email.com",
		Password: "fakepassword",
	})
	if err != nil {
		t.Fatalf("RequestVerification failed: %v", err)
	}
	if recipient != "fakeEmail@email.com" {
		t.Errorf("expected recipient fakeEmail@email.com, got %q", recipient)
	}
	if env.sender.verificationTo != "fakeEmail@email.com" {
		t.Errorf("verification email went to %q", env.sender.verificationTo)
	}
	if !strings.Contains(env.sender.verificationLink, "/auth/verify-email?token=") {
		t.Errorf("unexpected verification link: %q", env.sender.verificationLink)
	}

	user, err := env.svc.ActivateUser(linkToken(t, env.sender.verificationLink))
	if err != nil {
		t.Fatalf("ActivateUser failed: %v", err)
	}
	if user.Username != "fakeUser" || user.Email != "fakeEmail@email.com" {
		t.Errorf("activated user mismatch: %+v", user)
	}
	if user.CreatedAt.IsZero() {
		t.Error("activated user has no creation time")
	}
	if user.PasswordHash == "fakepassword" {
		t.Error("password stored in plaintext")
	}

	// Wrong password.
	_, err = env.svc.Login("fakeUser", "wrongpassword")
	authErr := assertAuthError(t, err, accounts.ErrCodeIncorrectPassword)
	if authErr.Message != "Incorrect password" {
		t.Errorf("unexpected message: %q", authErr.Message)
	}

	// Right password.
	logged, err := env.svc.Login("fakeUser", "fakepassword")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if logged.Username != "fakeUser" {
		t.Errorf("logged in as %q", logged.Username)
	}

	// Reset the password.
	recipient, err = env.svc.RequestPasswordReset("fakeUser")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if recipient != "fakeEmail@email.com" {
		t.Errorf("reset recipient %q", recipient)
	}
	if _, err := env.svc.ResetPassword(linkToken(t, env.sender.resetLink), "newPassword"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old password no longer authenticates; the new one does.
	_, err = env.svc.Login("fakeUser", "fakepassword")
	assertAuthError(t, err, accounts.ErrCodeIncorrectPassword)
	if _, err := env.svc.Login("fakeUser", "newPassword"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestRequestVerificationRejectsTakenUsername(t *testing.T) {
	env := setupService(t)
	mustRegister(t, env, "alice", "alice@example.com", "password123")

	_, err := env.svc.RequestVerification(&accounts.SignupRequest{
		Username: "alice",
		Email:    "alice2@example.com",
		Password: "password123",
	})
	assertAuthError(t, err, accounts.ErrCodeUsernameTaken)
}

func TestRequestVerificationValidation(t *testing.T) {
	env := setupService(t)

	tests := []struct {
		name     string
		req      accounts.SignupRequest
		wantCode string
	}{
		{
			name:     "short username",
			req:      accounts.SignupRequest{Username: "ab", Email: "a@example.com", Password: "password123"},
			wantCode: accounts.ErrCodeInvalidUsername,
		},
		{
			name:     "bad username characters",
			req:      accounts.SignupRequest{Username: "bad name!", Email: "a@example.com", Password: "password123"},
			wantCode: accounts.ErrCodeInvalidUsername,
		},
		{
			name:     "missing email",
			req:      accounts.SignupRequest{Username: "alice", Password: "password123"},
			wantCode: accounts.ErrCodeMissingField,
		},
		{
			name:     "bad email",
			req:      accounts.SignupRequest{Username: "alice", Email: "not-an-email", Password: "password123"},
			wantCode: accounts.ErrCodeInvalidEmail,
		},
		{
			name:     "weak password",
			req:      accounts.SignupRequest{Username: "alice", Email: "a@example.com", Password: "short"},
			wantCode: accounts.ErrCodeWeakPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.RequestVerification(&tt.req)
			assertAuthError(t, err, tt.wantCode)
		})
	}
}

func TestMailFailureLeavesPendingRegistration(t *testing.T) {
	env := setupService(t)
	env.sender.failNext = true

	_, err := env.svc.RequestVerification(&accounts.SignupRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	})
	assertAuthError(t, err, accounts.ErrCodeEmailFailed)

	// The pending record survived the mail failure, so the token from
	// the (failed) send still activates.
	user, err := env.svc.ActivateUser(linkToken(t, env.sender.verificationLink))
	if err != nil {
		t.Fatalf("ActivateUser after mail failure: %v", err)
	}
	if user.Username != "bob" {
		t.Errorf("activated %q", user.Username)
	}
}

func TestActivateTokenIsSingleUse(t *testing.T) {
	env := setupService(t)
	mustRegister(t, env, "carol", "carol@example.com", "password123")

	_, err := env.svc.ActivateUser(linkToken(t, env.sender.verificationLink))
	assertAuthError(t, err, accounts.ErrCodeTokenInvalid)
}

func TestActivateExpiredToken(t *testing.T) {
	env := setupService(t)

	err := env.unverified.CreateUnverified(&accounts.UnverifiedUser{
		Username:           "dave",
		Email:              "dave@example.com",
		PasswordHash:       "$2a$10$unused",
		VerificationToken:  "expired-token",
		VerificationExpiry: time.Now().Add(-time.Minute),
		CreatedAt:          time.Now().Add(-25 * time.Hour),
	})
	if err != nil {
		t.Fatalf("fixture create failed: %v", err)
	}

	_, err = env.svc.ActivateUser("expired-token")
	assertAuthError(t, err, accounts.ErrCodeTokenInvalid)
}

func TestLoginUnknownUsername(t *testing.T) {
	env := setupService(t)
	_, err := env.svc.Login("nobody", "password123")
	authErr := assertAuthError(t, err, accounts.ErrCodeUnknownUsername)
	if authErr.Message != "Username does not exist" {
		t.Errorf("unexpected message: %q", authErr.Message)
	}
}

func TestRequestPasswordResetUnknownUsername(t *testing.T) {
	env := setupService(t)
	_, err := env.svc.RequestPasswordReset("nobody")
	assertAuthError(t, err, accounts.ErrCodeUnknownUsername)
}

func TestResetPasswordTokenCases(t *testing.T) {
	env := setupService(t)
	mustRegister(t, env, "erin", "erin@example.com", "password123")

	// Unknown token.
	_, err := env.svc.ResetPassword("no-such-token", "newpassword1")
	assertAuthError(t, err, accounts.ErrCodeTokenInvalid)

	// A redeemed token cannot be redeemed again.
	if _, err := env.svc.RequestPasswordReset("erin"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token := linkToken(t, env.sender.resetLink)
	if _, err := env.svc.ResetPassword(token, "newpassword1"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	_, err = env.svc.ResetPassword(token, "newpassword2")
	assertAuthError(t, err, accounts.ErrCodeTokenInvalid)

	// An expired token reads as invalid, not as a mechanical failure.
	if _, err := env.users.SetResetToken("erin", "stale-token", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("fixture SetResetToken failed: %v", err)
	}
	_, err = env.svc.ResetPassword("stale-token", "newpassword3")
	assertAuthError(t, err, accounts.ErrCodeTokenInvalid)
}

func TestFindOrCreateGoogleUserIsIdempotent(t *testing.T) {
	env := setupService(t)

	first, err := env.svc.FindOrCreateGoogleUser("google-123", "frank.test@example.com")
	if err != nil {
		t.Fatalf("first FindOrCreateGoogleUser failed: %v", err)
	}
	if !strings.HasPrefix(first.Username, "franktest-") {
		t.Errorf("derived username %q", first.Username)
	}
	if first.GoogleID != "google-123" {
		t.Errorf("google id %q", first.GoogleID)
	}

	second, err := env.svc.FindOrCreateGoogleUser("google-123", "frank.test@example.com")
	if err != nil {
		t.Fatalf("second FindOrCreateGoogleUser failed: %v", err)
	}
	if second.ID != first.ID || second.Username != first.Username {
		t.Errorf("linking not idempotent: %+v vs %+v", first, second)
	}

	// The placeholder credential never authenticates.
	_, err = env.svc.Login(first.Username, "anything-at-all")
	assertAuthError(t, err, accounts.ErrCodeIncorrectPassword)
}

func TestChangeSettings(t *testing.T) {
	env := setupService(t)
	mustRegister(t, env, "grace", "grace@example.com", "password123")

	if _, err := env.svc.ChangeTheme("grace", "dark"); err != nil {
		t.Fatalf("ChangeTheme failed: %v", err)
	}
	if _, err := env.svc.ChangeFont("grace", "serif"); err != nil {
		t.Fatalf("ChangeFont failed: %v", err)
	}
	user, err := env.svc.ChangeTextSize("grace", "large")
	if err != nil {
		t.Fatalf("ChangeTextSize failed: %v", err)
	}

	// Fields accumulate independently.
	if user.Settings == nil {
		t.Fatal("settings absent after mutation")
	}
	if user.Settings.Theme != "dark" || user.Settings.Font != "serif" || user.Settings.TextSize != "large" {
		t.Errorf("settings mismatch: %+v", user.Settings)
	}

	stored, err := env.users.GetUserByUsername("grace")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.Settings == nil || stored.Settings.Theme != "dark" {
		t.Errorf("settings not persisted: %+v", stored.Settings)
	}
}

func TestChangeSettingsUnknownUsername(t *testing.T) {
	env := setupService(t)

	ops := map[string]func(string, string) (*accounts.User, error){
		"theme":            env.svc.ChangeTheme,
		"text size":        env.svc.ChangeTextSize,
		"text boldness":    env.svc.ChangeTextBoldness,
		"font":             env.svc.ChangeFont,
		"line spacing":     env.svc.ChangeLineSpacing,
		"background color": env.svc.ChangeBackgroundColor,
		"text color":       env.svc.ChangeTextColor,
		"button color":     env.svc.ChangeButtonColor,
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			_, err := op("nobody", "value")
			assertAuthError(t, err, accounts.ErrCodeUnknownUsername)
		})
	}
}

// failingUserStore simulates a broken backend for every operation.
type failingUserStore struct{}

func (failingUserStore) CreateUser(*accounts.User) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}
func (failingUserStore) GetUserByUsername(string) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}
func (failingUserStore) GetUserByGoogleID(string) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}
func (failingUserStore) SetResetToken(string, string, time.Time) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}
func (failingUserStore) RedeemResetToken(string, string, time.Time) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}
func (failingUserStore) UpdateSetting(string, accounts.SettingField, string) (*accounts.User, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestMechanicalFailuresNeverLeak(t *testing.T) {
	svc := accounts.NewService(failingUserStore{}, stores.NewFSUnverifiedUserStore(t.TempDir()), &capturingEmailSender{}, "http://localhost:8080")

	checks := []struct {
		name string
		run  func() error
	}{
		{"login", func() error { _, err := svc.Login("alice", "password123"); return err }},
		{"reset request", func() error { _, err := svc.RequestPasswordReset("alice"); return err }},
		{"reset", func() error { _, err := svc.ResetPassword("token", "password123"); return err }},
		{"google", func() error { _, err := svc.FindOrCreateGoogleUser("gid", "a@example.com"); return err }},
		{"settings", func() error { _, err := svc.ChangeTheme("alice", "dark"); return err }},
	}

	for _, check := range checks {
		t.Run(check.name, func(t *testing.T) {
			err := check.run()
			authErr := assertAuthError(t, err, accounts.ErrCodeInternal)
			if strings.Contains(authErr.Message, "connection refused") {
				t.Errorf("internal error text leaked: %q", authErr.Message)
			}
		})
	}
}
