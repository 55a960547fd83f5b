package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/internal/config"
	"github.com/geochat/tokenauth/internal/gateway"
	"github.com/geochat/tokenauth/internal/observability"
	"github.com/geochat/tokenauth/jwt"
	"github.com/geochat/tokenauth/middleware"
	promexport "github.com/geochat/tokenauth/metrics/export/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewGatewayCmd creates the gateway subcommand.
func NewGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the edge gateway",
		Long: `Run the edge gateway. Requests to public paths pass through; every other
request needs a valid access token before it is proxied to the upstream.`,
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
			return runGateway(ctx, settings, logger)
		},
	}
}

// edgeMetrics adapts bare engine counters to the exporter source interface.
type edgeMetrics struct {
	*tokenauth.Metrics
}

func (m edgeMetrics) MetricsSnapshot() tokenauth.MetricsSnapshot { return m.Snapshot() }
func (m edgeMetrics) NotifyDropped() uint64                      { return 0 }

func newGateway(settings config.Settings, logger *slog.Logger) (*gateway.Gateway, *tokenauth.Metrics, error) {
	cfg, err := settings.EngineConfig()
	if err != nil {
		return nil, nil, err
	}

	codec, err := jwt.NewManager(jwt.Config{Secret: cfg.Token.Secret, Issuer: cfg.Token.Issuer})
	if err != nil {
		return nil, nil, oops.Code("GATEWAY_TOKENS").Wrap(err)
	}
	metrics := tokenauth.NewMetrics(cfg.Metrics)
	tokens, err := tokenauth.NewTokenService(codec, cfg.Token, metrics)
	if err != nil {
		return nil, nil, oops.Code("GATEWAY_TOKENS").Wrap(err)
	}

	public := middleware.DefaultPublicPaths()
	if len(settings.Gateway.PublicPrefixes) > 0 {
		public.Prefixes = settings.Gateway.PublicPrefixes
	}

	g, err := gateway.New(settings.Gateway.Upstream, tokens,
		gateway.WithLogger(logger),
		gateway.WithMetrics(metrics),
		gateway.WithPublicPaths(public),
	)
	if err != nil {
		return nil, nil, err
	}
	return g, metrics, nil
}

func runGateway(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	g, metrics, err := newGateway(settings, logger)
	if err != nil {
		return err
	}

	var obs *observability.Server
	if settings.Metrics.Addr != "" {
		obs, err = observability.NewServer(settings.Metrics.Addr, nil, logger, promexport.NewCollector(edgeMetrics{metrics}))
		if err != nil {
			return err
		}
		if _, err := obs.Start(); err != nil {
			return err
		}
	}

	logger.Info("starting gateway", "addr", settings.Gateway.Addr, "upstream", settings.Gateway.Upstream)
	err = listenAndServe(ctx, settings.Gateway.Addr, g, logger, "gateway")

	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obs.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}
	return err
}
