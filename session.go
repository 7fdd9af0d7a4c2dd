package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpirySession is the default lifetime of a session token.
const TokenExpirySession = 24 * time.Hour

// SessionIssuer mints and validates the signed session tokens a web
// frontend holds after a successful login or activation.
type SessionIssuer struct {
	// SecretKey signs session tokens (HMAC).
	SecretKey string

	// Issuer and Audience are embedded and verified when non-empty.
	Issuer   string
	Audience string

	// SigningAlg selects HS256 (default), HS384, or HS512.
	SigningAlg string

	// Expiry defaults to TokenExpirySession when zero.
	Expiry time.Duration
}

// IssueSessionToken creates a signed session token for the user and
// returns it with its lifetime in seconds.
func (si *SessionIssuer) IssueSessionToken(user *User) (string, int64, error) {
	expiry := si.Expiry
	if expiry == 0 {
		expiry = TokenExpirySession
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"type":     "session",
		"iat":      now.Unix(),
		"exp":      now.Add(expiry).Unix(),
	}
	if si.Issuer != "" {
		claims["iss"] = si.Issuer
	}
	if si.Audience != "" {
		claims["aud"] = si.Audience
	}

	signingMethod := jwt.SigningMethodHS256
	if si.SigningAlg == "HS384" {
		signingMethod = jwt.SigningMethodHS384
	} else if si.SigningAlg == "HS512" {
		signingMethod = jwt.SigningMethodHS512
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	tokenString, err := token.SignedString([]byte(si.SecretKey))
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, int64(expiry.Seconds()), nil
}

// ValidateSessionToken verifies a session token and returns the user ID
// and username it carries.
func (si *SessionIssuer) ValidateSessionToken(tokenString string) (userID, username string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(si.SecretKey), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid claims")
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "session" {
		return "", "", fmt.Errorf("invalid token type")
	}
	if si.Issuer != "" {
		if iss, ok := claims["iss"].(string); !ok || iss != si.Issuer {
			return "", "", fmt.Errorf("invalid issuer")
		}
	}

	userID, ok = claims["sub"].(string)
	if !ok || userID == "" {
		return "", "", fmt.Errorf("missing subject")
	}
	username, _ = claims["username"].(string)
	return userID, username, nil
}
