package jwt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretSize is the smallest HMAC key accepted, matching the HS256 digest size.
const MinSecretSize = 32

var (
	// ErrMalformed is returned for input that is not a well-formed token with the required claims.
	ErrMalformed = errors.New("token malformed")
	// ErrUnsigned is returned when the signature is missing, uses another algorithm, or does not verify.
	ErrUnsigned = errors.New("token signature invalid")
	// ErrExpired is returned when exp <= now.
	ErrExpired = errors.New("token expired")
)

// Kind distinguishes access tokens from refresh tokens inside the claims.
type Kind string

const (
	// KindAccess marks a short-lived bearer credential.
	KindAccess Kind = "access"
	// KindRefresh marks a long-lived credential that is only exchanged for access tokens.
	KindRefresh Kind = "refresh"
)

// Config defines the signing material and clock used by a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// Secret is the raw HMAC key. Use DecodeSecret for base64 configuration values.
	Secret []byte
	// Issuer is written to and, when set, required in the iss claim.
	Issuer string
	// Now overrides the wall clock. Nil means time.Now.
	Now func() time.Time
}

// Manager mints and parses HS256 tokens.
//
// Manager instances are safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the payload carried by every token.
type Claims struct {
	Kind Kind `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// DecodeSecret decodes a base64 secret (standard or URL alphabet, padded or not).
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("empty token secret")
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if key, err := enc.DecodeString(encoded); err == nil {
			return key, nil
		}
	}
	return nil, errors.New("token secret is not valid base64")
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretSize {
		return nil, fmt.Errorf("hs256 requires a secret of at least %d bytes", MinSecretSize)
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// Mint signs claims for subject with iat=now and exp=now+ttl.
//
// No jti is included, so two tokens of the same kind minted for the same subject within one
// second are identical.
func (m *Manager) Mint(subject string, ttl time.Duration, kind Kind) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("empty token subject")
	}
	if ttl <= 0 {
		return "", errors.New("invalid token ttl")
	}

	now := m.config.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Parse verifies the signature and then the expiry of token.
//
// Parse returns ErrMalformed, ErrUnsigned or ErrExpired (wrapped with the underlying cause).
func (m *Manager) Parse(token string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnsigned, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
