package auth

import (
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Passwords hashes new passwords with the configured algorithm and verifies
// stored hashes of either supported kind.
type Passwords struct {
	algorithm   string
	bcryptCost  int
	argonParams *argon2id.Params
}

func NewPasswords(algorithm string, bcryptCost int) (*Passwords, error) {
	switch algorithm {
	case "", AlgorithmBcrypt:
		algorithm = AlgorithmBcrypt
		if bcryptCost == 0 {
			bcryptCost = bcrypt.DefaultCost
		}
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
	case AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("unknown password hash algorithm %q", algorithm)
	}
	return &Passwords{
		algorithm:   algorithm,
		bcryptCost:  bcryptCost,
		argonParams: argon2id.DefaultParams,
	}, nil
}

// Hash returns a salted, self-describing hash of plain.
func (p *Passwords) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password")
	}
	if p.algorithm == AlgorithmArgon2id {
		h, err := argon2id.CreateHash(plain, p.argonParams)
		if err != nil {
			return "", fmt.Errorf("argon2id: %w", err)
		}
		return h, nil
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), p.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

// Verify reports whether candidate matches storedHash. Any malformed input
// or library failure counts as a mismatch.
func (p *Passwords) Verify(storedHash, candidate string) bool {
	if storedHash == "" || candidate == "" {
		return false
	}
	switch {
	case strings.HasPrefix(storedHash, "$argon2id$"):
		ok, err := argon2id.ComparePasswordAndHash(candidate, storedHash)
		return err == nil && ok
	case strings.HasPrefix(storedHash, "$2a$"),
		strings.HasPrefix(storedHash, "$2b$"),
		strings.HasPrefix(storedHash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate)) == nil
	}
	return false
}
