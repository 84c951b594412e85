// Package hasher provides one-way credential hashing for password-protected
// links. The stored value is opaque to the rest of the system.
package hasher

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &Bcrypt{cost: cost}
}

func (h *Bcrypt) Hash(plaintext string) (string, error) {
	const op = "hasher.Bcrypt.Hash"

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	return string(hash), nil
}

func (h *Bcrypt) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
