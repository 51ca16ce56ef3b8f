package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier checks plaintext passwords against bcrypt hashes.
type PasswordVerifier struct {
	cost      int
	dummyHash []byte
}

// NewPasswordVerifier creates a verifier hashing at cost. The dummy hash used
// by VerifyMissing is generated at the same cost so an unknown email costs
// about as much as a wrong password.
func NewPasswordVerifier(cost int) (*PasswordVerifier, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to seed dummy hash: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(seed)), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to create dummy hash: %w", err)
	}
	return &PasswordVerifier{cost: cost, dummyHash: dummy}, nil
}

// Verify reports whether plaintext matches storedHash. A malformed hash is a
// mismatch, never an error.
func (p *PasswordVerifier) Verify(plaintext, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// VerifyMissing runs one comparison against the dummy hash for an account
// that does not exist. It always reports false.
func (p *PasswordVerifier) VerifyMissing(plaintext string) bool {
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
	return false
}

// Hash returns the bcrypt hash of plaintext at the verifier's cost.
func (p *PasswordVerifier) Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
