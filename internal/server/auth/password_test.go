package auth

import (
	"errors"
	"testing"

	"github.com/sonifoy/authsvc/internal/common"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "s3cret!" {
		t.Fatal("hash must not equal the password")
	}
	if err := h.Verify(hash, "s3cret!"); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if err := h.Verify(hash, "wrong"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestBcryptHasher_ClampsCost(t *testing.T) {
	t.Parallel()

	if got := NewBcryptHasher(1).cost; got != bcrypt.MinCost {
		t.Fatalf("cost = %d, want %d", got, bcrypt.MinCost)
	}
	if got := NewBcryptHasher(99).cost; got != bcrypt.MaxCost {
		t.Fatalf("cost = %d, want %d", got, bcrypt.MaxCost)
	}
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	t.Parallel()

	err := NewBcryptHasher(bcrypt.MinCost).Verify("not-a-hash", "pw")
	if err == nil || errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("expected a non-credential error, got %v", err)
	}
}
