// Package oauth2 resolves Google sign-in callbacks into the
// (google id, email) pair that accounts.Service.FindOrCreateGoogleUser
// consumes. Route wiring is left to the application.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Profile is the subset of the Google userinfo response the account
// subsystem cares about.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleOAuth2 drives the authorization-code flow against Google.
type GoogleOAuth2 struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	config oauth2.Config
}

// NewGoogleOAuth2 builds a Google OAuth2 client. Empty arguments fall
// back to the OAUTH2_GOOGLE_CLIENT_ID, OAUTH2_GOOGLE_CLIENT_SECRET, and
// OAUTH2_GOOGLE_CALLBACK_URL environment variables.
func NewGoogleOAuth2(clientID, clientSecret, callbackURL string) *GoogleOAuth2 {
	if clientID == "" {
		clientID = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackURL == "" {
		callbackURL = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}

	return &GoogleOAuth2{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CallbackURL:  callbackURL,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthCodeURL returns the Google consent-page URL for the given state.
func (g *GoogleOAuth2) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (g *GoogleOAuth2) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return token, nil
}

// FetchProfile retrieves the authenticated user's Google profile.
func (g *GoogleOAuth2) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	resp, err := g.config.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading userinfo response: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed parsing userinfo response: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, fmt.Errorf("userinfo response missing id or email")
	}
	return &profile, nil
}

// ResolveUser runs the full callback half of the flow: exchange the
// code, fetch the profile, and verify the email before handing the
// identity to the caller.
func (g *GoogleOAuth2) ResolveUser(ctx context.Context, code string) (*Profile, error) {
	token, err := g.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := g.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	if !profile.VerifiedEmail {
		return nil, fmt.Errorf("google account email is not verified")
	}
	return profile, nil
}
