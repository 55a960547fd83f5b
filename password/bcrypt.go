package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptID = "bcrypt"
	// BcryptDefaultCost is the work factor used by Default.
	BcryptDefaultCost = bcrypt.DefaultCost
	// bcrypt ignores input past 72 bytes; longer passwords are rejected instead.
	bcryptMaxPasswordBytes = 72
)

// Bcrypt hashes passwords with bcrypt at a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. cost must be within bcrypt.MinCost and bcrypt.MaxCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns the bcrypt encoding of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if err := checkLength(password, bcryptMaxPasswordBytes); err != nil {
		return "", err
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify compares password with encodedHash.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if err := checkLength(password, bcryptMaxPasswordBytes); err != nil {
		return false, err
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
}

// NeedsUpgrade reports whether encodedHash was written with a lower cost.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
	return cost < b.cost, nil
}
