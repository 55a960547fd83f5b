package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/internal/config"
	"github.com/geochat/tokenauth/internal/httpapi"
	"github.com/geochat/tokenauth/internal/observability"
	promexport "github.com/geochat/tokenauth/metrics/export/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auth API",
		Long: `Run the auth API: registration, login, refresh, logout, the password reset
flow and /users/me, backed by Redis and the configured user directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(settings, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, settings, logger, cmd.ErrOrStderr())
		},
	}
}

// api is a built engine with its HTTP surface and the resources it owns.
type api struct {
	engine  *tokenauth.Engine
	handler http.Handler
	ready   func(context.Context) error
	close   func()
}

func newAPI(ctx context.Context, settings config.Settings, logger *slog.Logger, stderr io.Writer) (*api, error) {
	cfg, err := settings.EngineConfig()
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(settings, stderr)
	if err != nil {
		return nil, err
	}

	rdb, err := connectRedis(ctx, settings, logger)
	if err != nil {
		return nil, err
	}

	dir, err := openDirectory(ctx, settings, logger)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir.users).
		WithNotifier(notifier).
		WithLogger(logger).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		dir.close()
		_ = rdb.Close()
		return nil, oops.Code("ENGINE_BUILD").Wrap(err)
	}

	redisPing := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	handler := httpapi.New(engine,
		httpapi.WithLogger(logger),
		httpapi.WithHealthCheck("redis", redisPing),
		httpapi.WithHealthCheck("userdir", dir.ping),
	)

	return &api{
		engine:  engine,
		handler: handler,
		ready: func(ctx context.Context) error {
			return errors.Join(redisPing(ctx), dir.ping(ctx))
		},
		close: func() {
			engine.Close()
			dir.close()
			_ = rdb.Close()
		},
	}, nil
}

func runServe(ctx context.Context, settings config.Settings, logger *slog.Logger, stderr io.Writer) error {
	app, err := newAPI(ctx, settings, logger, stderr)
	if err != nil {
		return err
	}
	defer app.close()

	var obs *observability.Server
	if settings.Metrics.Addr != "" {
		obs, err = observability.NewServer(settings.Metrics.Addr, app.ready, logger, promexport.NewCollector(app.engine))
		if err != nil {
			return err
		}
		if _, err := obs.Start(); err != nil {
			return err
		}
	}

	err = listenAndServe(ctx, settings.HTTP.Addr, app.handler, logger, "auth api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if obs != nil {
		if stopErr := obs.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}
	return err
}

// listenAndServe serves handler on addr until ctx is done, then shuts down gracefully.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, name string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()
	logger.Info("server listening", "server", name, "addr", listener.Addr().String())

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "server", name)
	case serveErr := <-errCh:
		return oops.Code("SERVE_FAILED").With("server", name).Wrap(serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.With("server", name).Wrap(err)
	}
	return nil
}
