// Package common defines shared constants, sentinel errors and random helpers
// used across the auth service. Callers should use errors.Is to match the
// error values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrStoreUnavailable  = errors.New("store unavailable")

	// Credential and verification errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid verification code")

	// Token lifecycle errors.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")

	// Login could not persist both the refresh token and the session key.
	ErrSessionSetupFailed = errors.New("session setup failed")

	// Boundary validation errors.
	ErrorValidation = errors.New("validation error")
)
