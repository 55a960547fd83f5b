package tokenauth

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/geochat/tokenauth/credstore"
	"github.com/geochat/tokenauth/internal/dispatch"
	"github.com/geochat/tokenauth/internal/limiters"
	"github.com/geochat/tokenauth/jwt"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store    credstore.Store
	users    UserDirectory
	notifier Notifier
	limiter  ResetLimiter
	logger   *slog.Logger
	now      func() time.Time
	random   io.Reader

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a Redis client. When no credential store is set it backs a
// credstore.RedisStore, and it backs the reset throttle when ResetCode.RequestLimit > 0.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the store for refresh sessions and reset codes.
func (b *Builder) WithCredentialStore(store credstore.Store) *Builder {
	b.store = store
	return b
}

// WithUserDirectory sets the user directory.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithNotifier sets the reset code transport.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithResetLimiter overrides the reset throttle built from WithRedis.
func (b *Builder) WithResetLimiter(l ResetLimiter) *Builder {
	b.limiter = l
	return b
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the token clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom overrides the reset code entropy source.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithMetricsEnabled toggles engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("credential store or redis client required")
		}
		store = credstore.NewRedisStore(b.redis)
	}

	if b.users == nil {
		return nil, errors.New("user directory required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics(cfg.Metrics)

	codec, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.Token.Secret),
		Issuer: cfg.Token.Issuer,
		Now:    b.now,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenService(codec, cfg.Token, metrics)
	if err != nil {
		return nil, err
	}

	sessions, err := NewSessionManager(tokens, store, b.users, metrics, logger)
	if err != nil {
		return nil, err
	}

	limiter := b.limiter
	if limiter == nil && cfg.ResetCode.RequestLimit > 0 {
		if b.redis == nil {
			return nil, errors.New("ResetCode RequestLimit requires a redis client or reset limiter")
		}
		limiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			MaxRequests: cfg.ResetCode.RequestLimit,
			Window:      cfg.ResetCode.RequestWindow,
		})
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Async:      cfg.Notify.Async,
		BufferSize: cfg.Notify.BufferSize,
		DropIfFull: cfg.Notify.DropIfFull,
	}, b.notifier,
		dispatch.WithLogger(logger),
		dispatch.WithFailureHook(func() { metrics.Inc(MetricNotifyFailure) }),
	)

	resets := newPasswordResetFlow(store, b.users, dispatcher, limiter, cfg.ResetCode, metrics, logger, b.random)

	b.built = true

	return &Engine{
		config:     cfg,
		tokens:     tokens,
		sessions:   sessions,
		resets:     resets,
		users:      b.users,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}, nil
}
