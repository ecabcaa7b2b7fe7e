package auth

import (
	"errors"
	"fmt"

	"github.com/sonifoy/authsvc/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns passwords into salted one-way hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns common.ErrInvalidCredentials when password does not
	// match hash.
	Verify(hash, password string) error
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost into bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	cost = max(cost, bcrypt.MinCost)
	cost = min(cost, bcrypt.MaxCost)
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Verify(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return common.ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
