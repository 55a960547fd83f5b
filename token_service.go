package tokenauth

import (
	"errors"
	"time"

	"github.com/geochat/tokenauth/jwt"
)

// TokenService mints access and refresh tokens and validates presented ones.
//
// TokenService is stateless and safe for concurrent use.
type TokenService struct {
	codec      *jwt.Manager
	accessTTL  time.Duration
	refreshTTL time.Duration
	metrics    *Metrics
	now        func() time.Time
}

// NewTokenService wraps codec with the lifetimes from cfg. metrics may be nil.
func NewTokenService(codec *jwt.Manager, cfg TokenConfig, metrics *Metrics) (*TokenService, error) {
	if codec == nil {
		return nil, errors.New("token codec required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token ttls must be > 0")
	}
	return &TokenService{
		codec:      codec,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// IssueAccessToken mints a short-lived bearer token for subject.
func (s *TokenService) IssueAccessToken(subject string) (string, error) {
	return s.codec.Mint(subject, s.accessTTL, jwt.KindAccess)
}

// IssueRefreshToken mints a refresh token for subject. The caller is responsible for storing
// it; an unstored refresh token is never accepted.
func (s *TokenService) IssueRefreshToken(subject string) (string, error) {
	return s.codec.Mint(subject, s.refreshTTL, jwt.KindRefresh)
}

// RefreshTTL is the lifetime given to refresh tokens and their store entries.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Validate reports whether token carries a valid signature, has not expired and, when
// expectedSubject is non-empty, belongs to expectedSubject. Malformed input yields false.
func (s *TokenService) Validate(token, expectedSubject string) bool {
	_, ok := s.check(token, expectedSubject)
	return ok
}

// Claims parses token and returns its claims or the typed codec error
// (jwt.ErrMalformed, jwt.ErrUnsigned, jwt.ErrExpired).
func (s *TokenService) Claims(token string) (*jwt.Claims, error) {
	start := s.now()
	claims, err := s.codec.Parse(token)
	if s.metrics.LatencyEnabled() {
		s.metrics.Observe(MetricValidateLatency, s.now().Sub(start))
	}
	return claims, err
}

func (s *TokenService) check(token, expectedSubject string) (*jwt.Claims, bool) {
	claims, err := s.Claims(token)
	if err != nil {
		return nil, false
	}
	if expectedSubject != "" && claims.Subject != expectedSubject {
		return nil, false
	}
	return claims, true
}
