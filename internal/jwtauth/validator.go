// Package jwtauth validates the HS256 bearer tokens the host environment
// issues to callers. The token subject is the caller's hex address; the
// registry trusts the host to have authenticated key ownership.
package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"flowledger/pkg/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSubject    = errors.New("token has no subject address")
)

// Validator checks token signatures and extracts the caller address.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token, returning the subject address.
func (v *Validator) ValidateToken(tokenString string) (domain.Address, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return domain.ZeroAddress, ErrNoSubject
	}
	addr, ok := domain.ParseAddress(subject)
	if !ok {
		return domain.ZeroAddress, fmt.Errorf("%w: subject %q is not an address", ErrInvalidToken, subject)
	}
	return addr, nil
}

// Issue mints a token for the given address. Used by tests and local
// tooling; production tokens come from the host environment.
func (v *Validator) Issue(addr domain.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
}
