package tokenauth

import (
	"errors"
	"time"

	"github.com/geochat/tokenauth/jwt"
)

// Config is the complete engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Token     TokenConfig
	ResetCode ResetCodeConfig
	Notify    NotifyConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls minting of access and refresh tokens.
type TokenConfig struct {
	// Secret is the raw HS256 key, at least jwt.MinSecretSize bytes.
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

/*
====================================
RESET CODE CONFIG
====================================
*/

// ResetCodeConfig controls the password reset flow.
type ResetCodeConfig struct {
	TTL    time.Duration
	Digits int

	// RequestLimit caps reset requests per email within RequestWindow. Zero disables the throttle.
	RequestLimit  int
	RequestWindow time.Duration

	// RevokeSessions deletes the refresh session after a successful reset.
	RevokeSessions bool
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig controls how reset codes reach the Notifier.
type NotifyConfig struct {
	// Async hands codes to a background worker instead of delivering inline.
	Async      bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when no overrides are supplied. The token secret
// has no default and must be set before Build.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		ResetCode: ResetCodeConfig{
			TTL:            10 * time.Minute,
			Digits:         6,
			RequestLimit:   0,
			RequestWindow:  15 * time.Minute,
			RevokeSessions: true,
		},
		Notify: NotifyConfig{
			Async:      false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < jwt.MinSecretSize {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}

	// Reset code
	if c.ResetCode.TTL <= 0 {
		return errors.New("ResetCode TTL must be > 0")
	}
	if c.ResetCode.Digits < 4 || c.ResetCode.Digits > 10 {
		return errors.New("ResetCode Digits must be between 4 and 10")
	}
	if c.ResetCode.RequestLimit < 0 {
		return errors.New("ResetCode RequestLimit must be >= 0")
	}
	if c.ResetCode.RequestLimit > 0 && c.ResetCode.RequestWindow <= 0 {
		return errors.New("ResetCode RequestWindow must be > 0 when RequestLimit is set")
	}

	// Notify
	if c.Notify.Async && c.Notify.BufferSize <= 0 {
		return errors.New("Notify BufferSize must be > 0 when Async is true")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
