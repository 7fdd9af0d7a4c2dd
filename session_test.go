package accounts_test

import (
	"testing"
	"time"

	"github.com/stackloop/accounts"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := &accounts.SessionIssuer{
		SecretKey: "test-secret",
		Issuer:    "accounts-test",
	}
	user := &accounts.User{ID: "user-1", Username: "alice"}

	token, expiresIn, err := issuer.IssueSessionToken(user)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if expiresIn != int64(accounts.TokenExpirySession.Seconds()) {
		t.Errorf("unexpected expiry seconds %d", expiresIn)
	}

	userID, username, err := issuer.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken failed: %v", err)
	}
	if userID != "user-1" || username != "alice" {
		t.Errorf("claims mismatch: %q %q", userID, username)
	}
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	issuer := &accounts.SessionIssuer{SecretKey: "secret-a"}
	token, _, err := issuer.IssueSessionToken(&accounts.User{ID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	other := &accounts.SessionIssuer{SecretKey: "secret-b"}
	if _, _, err := other.ValidateSessionToken(token); err == nil {
		t.Error("token accepted with wrong secret")
	}
}

func TestSessionTokenRejectsWrongIssuer(t *testing.T) {
	issuer := &accounts.SessionIssuer{SecretKey: "secret", Issuer: "app-a"}
	token, _, err := issuer.IssueSessionToken(&accounts.User{ID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	other := &accounts.SessionIssuer{SecretKey: "secret", Issuer: "app-b"}
	if _, _, err := other.ValidateSessionToken(token); err == nil {
		t.Error("token accepted with wrong issuer")
	}
}

func TestSessionTokenExpires(t *testing.T) {
	issuer := &accounts.SessionIssuer{
		SecretKey: "secret",
		Expiry:    -time.Minute,
	}
	token, _, err := issuer.IssueSessionToken(&accounts.User{ID: "user-1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if _, _, err := issuer.ValidateSessionToken(token); err == nil {
		t.Error("expired token accepted")
	}
}
