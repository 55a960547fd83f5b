// Package gateway is the edge reverse proxy. It rejects requests without a valid access
// token, except on public paths, and forwards everything else to one upstream. Paths are
// forwarded with dot segments resolved; headers and bodies are forwarded unchanged.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/middleware"
	"github.com/samber/oops"
)

// Gateway guards and proxies requests to an upstream service.
type Gateway struct {
	upstream  *url.URL
	public    middleware.PublicPaths
	logger    *slog.Logger
	metrics   *tokenauth.Metrics
	transport http.RoundTripper
	handler   http.Handler
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics counts edge rejections in m.
func WithMetrics(m *tokenauth.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithPublicPaths replaces DefaultPublicPaths.
func WithPublicPaths(p middleware.PublicPaths) Option {
	return func(g *Gateway) { g.public = p }
}

// WithTransport sets the upstream round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.transport = rt }
}

// New returns a Gateway forwarding to upstream, an absolute http or https URL.
func New(upstream string, tokens middleware.TokenParser, opts ...Option) (*Gateway, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, oops.Code("GATEWAY_UPSTREAM_INVALID").With("upstream", upstream).Wrap(err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, oops.Code("GATEWAY_UPSTREAM_INVALID").
			With("upstream", upstream).
			Errorf("upstream must be an absolute http(s) URL")
	}
	if tokens == nil {
		return nil, oops.Code("GATEWAY_TOKENS_MISSING").Errorf("token parser is required")
	}

	g := &Gateway{
		upstream: target,
		public:   middleware.DefaultPublicPaths(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(g.upstream)
			pr.SetXForwarded()
		},
		Transport:    g.transport,
		ErrorHandler: g.upstreamError,
	}

	guard := middleware.GuardWithHook(g.reject, middleware.EdgeFilter(tokens, g.public))
	g.handler = guard(proxy)
	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

func (g *Gateway) reject(r *http.Request, err error) {
	g.metrics.Inc(tokenauth.MetricEdgeRejected)
	g.logger.DebugContext(r.Context(), "edge rejected request",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
}

func (g *Gateway) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.ErrorContext(r.Context(), "upstream request failed",
		"upstream", g.upstream.Host,
		"path", r.URL.Path,
		"error", err,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad gateway"})
}
