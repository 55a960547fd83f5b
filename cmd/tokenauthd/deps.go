package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/internal/config"
	"github.com/geochat/tokenauth/internal/logging"
	"github.com/geochat/tokenauth/notify"
	"github.com/geochat/tokenauth/password"
	"github.com/geochat/tokenauth/userdir"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

const serviceName = "tokenauthd"

// loadSettings reads --config (or TOKENAUTH_CONFIG), the environment and changed flags.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Settings{}, oops.Wrap(err)
	}
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	settings, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func newLogger(settings config.Settings, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.Setup(serviceName, version, settings.Log.Format, settings.Log.Level, w)
	if err != nil {
		return nil, oops.Code("LOGGING_SETUP").Wrap(err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// waitFor retries ping with exponential backoff until it succeeds or the attempts run out.
func waitFor(ctx context.Context, logger *slog.Logger, dependency string, ping func(context.Context) error) error {
	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			logger.WarnContext(ctx, "dependency not ready", "dependency", dependency, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DEPENDENCY_UNAVAILABLE").With("dependency", dependency).Wrap(err)
	}
	return nil
}

func connectRedis(ctx context.Context, settings config.Settings, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Redis.Addr,
		Password: settings.Redis.Password,
		DB:       settings.Redis.DB,
	})
	if err := waitFor(ctx, logger, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// newHasher hashes with the configured scheme and still verifies the other one, so
// switching schemes upgrades stored hashes on the next login.
func newHasher(scheme string) (password.Hasher, error) {
	bcryptHasher := password.Default()
	argon, err := password.NewArgon2(password.DefaultArgon2Config())
	if err != nil {
		return nil, oops.Code("HASHER_SETUP").Wrap(err)
	}

	switch scheme {
	case "", "bcrypt":
		return password.Migrating{Primary: bcryptHasher, Legacy: []password.Hasher{argon}}, nil
	case "argon2id":
		return password.Migrating{Primary: argon, Legacy: []password.Hasher{bcryptHasher}}, nil
	default:
		return nil, oops.Code("HASHER_SETUP").With("scheme", scheme).Errorf("unknown password hasher")
	}
}

// directory is a user directory plus its health probe and cleanup.
type directory struct {
	users tokenauth.UserDirectory
	ping  func(context.Context) error
	close func()
}

func openDirectory(ctx context.Context, settings config.Settings, logger *slog.Logger) (directory, error) {
	hasher, err := newHasher(settings.UserDir.Hasher)
	if err != nil {
		return directory{}, err
	}
	opts := []userdir.Option{userdir.WithHasher(hasher), userdir.WithLogger(logger)}

	if settings.UserDir.DSN == "" {
		logger.WarnContext(ctx, "no user directory DSN configured, using in-memory users")
		return directory{
			users: userdir.NewMemory(opts...),
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, settings.UserDir.DSN)
	if err != nil {
		return directory{}, oops.Code("USERDIR_CONNECT").Wrap(err)
	}
	users := userdir.NewPostgres(pool, opts...)
	if err := waitFor(ctx, logger, "postgres", users.Ping); err != nil {
		pool.Close()
		return directory{}, err
	}
	return directory{users: users, ping: users.Ping, close: pool.Close}, nil
}

func newNotifier(settings config.Settings, stderr io.Writer) (tokenauth.Notifier, error) {
	if settings.SMTP.Host == "" {
		return notify.NewOutbox(stderr), nil
	}
	sender, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     settings.SMTP.Host,
		Port:     settings.SMTP.Port,
		Username: settings.SMTP.Username,
		Password: settings.SMTP.Password,
		From:     settings.SMTP.From,
		Subject:  settings.SMTP.Subject,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
