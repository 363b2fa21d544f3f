package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost of 10 balances brute-force resistance against negotiation
// latency; room secrets are checked once per join attempt.
const bcryptCost = 10

// HashSecret generates a bcrypt hash of a room secret. The empty string is a
// valid secret and hashes like any other.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// CompareSecret compares a bcrypt-hashed room secret with a supplied
// plaintext. Matching is exact and case-sensitive.
func CompareSecret(hashedSecret, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
}
