package auth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare must take the same time whether the password matches or not
	Compare(hashedPassword string, password string) error

	// NeedsRehash reports hash made with weaker settings than the current ones
	NeedsRehash(hashedPassword string) bool
}

// BcryptHasher pre-hashes passwords with sha256, bcrypt ignores everything after 72 bytes
type BcryptHasher struct {
	// bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func digest(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(digest(password), h.cost())
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), digest(password))
}

func (h BcryptHasher) NeedsRehash(hashedPassword string) bool {
	cost, err := bcrypt.Cost([]byte(hashedPassword))
	return err != nil || cost < h.cost()
}
