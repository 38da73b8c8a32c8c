package auth

import (
	"errors"
	"time"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// ErrAdminLoginDisabled is returned when no admin password hash is configured
var ErrAdminLoginDisabled = errors.New("admin login is not configured")

const adminSubject = "admin"

// AdminAuthenticator exchanges the configured admin password for a token
type AdminAuthenticator struct {
	hasher       *PasswordHasher
	passwordHash string
	tokens       *JWTManager
}

// NewAdminAuthenticator creates an authenticator for passwordHash, an
// Argon2id hash as produced by PasswordHasher.HashPassword
func NewAdminAuthenticator(hasher *PasswordHasher, passwordHash string, tokens *JWTManager) *AdminAuthenticator {
	return &AdminAuthenticator{
		hasher:       hasher,
		passwordHash: passwordHash,
		tokens:       tokens,
	}
}

// Enabled reports whether an admin password is configured
func (a *AdminAuthenticator) Enabled() bool {
	return a.passwordHash != ""
}

// Login returns an admin token if password matches
func (a *AdminAuthenticator) Login(password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAdminLoginDisabled
	}

	ok, err := a.hasher.VerifyPassword(password, a.passwordHash)
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		return "", time.Time{}, models.ErrInvalidCredentials
	}

	return a.tokens.GenerateToken(adminSubject, RoleAdmin)
}
