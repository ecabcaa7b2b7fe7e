// Package auth mints and verifies access tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sonifoy/authsvc/internal/common"
)

// TokenMinter issues short-lived signed access tokens. It holds no state
// besides its key material.
type TokenMinter interface {
	Mint(subject string, now time.Time) (string, error)
}

// Claims are the registered claims of an access token. Subject carries the
// identity's email.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTMinter signs HS256 access tokens.
type JWTMinter struct {
	secret   []byte
	issuer   string
	validity time.Duration
	timeFunc func() time.Time
}

// MinterOption customises a JWTMinter.
type MinterOption func(*JWTMinter)

// WithTimeFunc sets the clock Parse checks expiry against. It should be the
// same clock that supplies the issue time passed to Mint.
func WithTimeFunc(now func() time.Time) MinterOption {
	return func(m *JWTMinter) { m.timeFunc = now }
}

func NewJWTMinter(secret []byte, issuer string, validity time.Duration, opts ...MinterOption) *JWTMinter {
	m := &JWTMinter{secret: secret, issuer: issuer, validity: validity, timeFunc: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint returns a token for subject issued at now and expiring after the
// configured validity.
func (m *JWTMinter) Mint(subject string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
		},
	})

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return tokenString, nil
}

// Parse verifies tokenString and returns its subject.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// verification yields common.ErrInvalidToken.
func (m *JWTMinter) Parse(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.timeFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
