package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements Hasher using bcrypt
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the given cost, zero means default
func NewBcryptHasher(cost int) BcryptHasher {
	if cost == 0 {
		cost = passwordHashCost()
	}
	return BcryptHasher{Cost: cost}
}

// Hash implements Hasher
func (b BcryptHasher) Hash(secret string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}
	return hashWithCost(secret, cost)
}

// Verify implements Hasher
func (b BcryptHasher) Verify(secret, hash string) bool {
	return ComparePasswordAndHash(secret, hash) == nil
}

// MaxPasswordLength is the longest password bcrypt accepts, in bytes
const MaxPasswordLength = 72

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return hashWithCost(password, passwordHashCost())
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

func hashWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	return string(h), err
}
