package password

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxPasswordBytes bounds the plaintext accepted by Hash and Verify.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")
	// ErrPasswordTooLong is returned for plaintext above the hasher's byte limit.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrUnsupportedHash is returned for stored hashes no configured algorithm can read.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Hasher hashes and verifies passwords.
//
// Verify returns (false, nil) on mismatch and an error only for unreadable hashes or
// rejected input.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Default returns a bcrypt hasher with the default cost.
func Default() Hasher {
	h, err := NewBcrypt(BcryptDefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}

// Migrating hashes with Primary and verifies with whichever hasher owns the stored format.
type Migrating struct {
	Primary Hasher
	Legacy  []Hasher
}

// Hash calls Primary.
func (m Migrating) Hash(password string) (string, error) {
	if m.Primary == nil {
		return "", errors.New("primary hasher required")
	}
	return m.Primary.Hash(password)
}

// Verify selects a hasher by the stored hash prefix.
func (m Migrating) Verify(password, encodedHash string) (bool, error) {
	h, err := m.owner(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

// NeedsUpgrade reports true for hashes written by a legacy hasher, and otherwise defers
// to Primary.
func (m Migrating) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := m.owner(encodedHash)
	if err != nil {
		return false, err
	}
	if h != m.Primary {
		return true, nil
	}
	return m.Primary.NeedsUpgrade(encodedHash)
}

func (m Migrating) owner(encodedHash string) (Hasher, error) {
	scheme := Scheme(encodedHash)
	for _, h := range append([]Hasher{m.Primary}, m.Legacy...) {
		if h != nil && schemeOf(h) == scheme {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedHash, scheme)
}

// Scheme names the algorithm of an encoded hash: "argon2id", "bcrypt" or "".
func Scheme(encodedHash string) string {
	switch {
	case strings.HasPrefix(encodedHash, "$"+argon2ID+"$"):
		return argon2ID
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return bcryptID
	default:
		return ""
	}
}

func schemeOf(h Hasher) string {
	switch h.(type) {
	case *Argon2:
		return argon2ID
	case *Bcrypt:
		return bcryptID
	default:
		return ""
	}
}

func checkLength(password string, max int) error {
	if max <= 0 {
		max = DefaultMaxPasswordBytes
	}
	if len(password) > max {
		return ErrPasswordTooLong
	}
	return nil
}
