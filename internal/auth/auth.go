// Package auth models viewer identity and the reactive authentication state
// the rest of the application observes.
//
// Authentication itself is delegated to an external identity provider that
// issues signed bearer tokens; this package only verifies tokens and tracks
// who the current viewer is.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthorized is returned when no valid token is presented.
	ErrUnauthorized = errors.New("authentication required")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrReauthFailed is returned when a reauthentication credential does
	// not match.
	ErrReauthFailed = errors.New("reauthentication failed")
)

// User identifies an authenticated viewer.
type User struct {
	UID   string
	Email string
	Name  string
}

// Viewer is the identity a request acts as. A nil Viewer is anonymous.
type Viewer struct {
	User *User
}

// Anonymous is the unauthenticated viewer.
var Anonymous = Viewer{}

// IsAuthenticated reports whether the viewer is signed in.
func (v Viewer) IsAuthenticated() bool { return v.User != nil }

// Email returns the viewer's email, or "" when anonymous.
func (v Viewer) Email() string {
	if v.User == nil {
		return ""
	}
	return v.User.Email
}

// UID returns the viewer's subject ID, or "" when anonymous.
func (v Viewer) UID() string {
	if v.User == nil {
		return ""
	}
	return v.User.UID
}

// Verifier validates bearer tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	// adminCredHash is the bcrypt hash checked by Reauthenticate.
	adminCredHash []byte
}

// NewVerifier creates a Verifier with the given HMAC secret and optional
// bcrypt hash of the admin reauthentication credential.
func NewVerifier(secret, adminCredHash []byte) *Verifier {
	return &Verifier{secret: secret, adminCredHash: adminCredHash}
}

// VerifyHeader extracts and verifies the bearer token from an Authorization
// header value. An empty header yields the anonymous viewer without error.
func (v *Verifier) VerifyHeader(header string) (Viewer, error) {
	if header == "" {
		return Anonymous, nil
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return Anonymous, ErrUnauthorized
	}
	return v.Verify(parts[1])
}

// Verify validates a token string and returns the viewer it identifies.
func (v *Verifier) Verify(tokenString string) (Viewer, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Anonymous, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Anonymous, ErrInvalidToken
	}
	uid, _ := claims["sub"].(string)
	if uid == "" {
		return Anonymous, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return Viewer{User: &User{UID: uid, Email: email, Name: name}}, nil
}

// Reauthenticate checks a credential against the configured admin
// credential hash. Destructive operations require it. An empty hash
// means reauthentication is not configured and every credential passes.
func (v *Verifier) Reauthenticate(credential string) error {
	if len(v.adminCredHash) == 0 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(v.adminCredHash, []byte(credential)); err != nil {
		return ErrReauthFailed
	}
	return nil
}
