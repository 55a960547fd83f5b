package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/middleware"
	"github.com/google/uuid"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server routes HTTP requests to an Engine.
type Server struct {
	engine  *tokenauth.Engine
	logger  *slog.Logger
	checks  map[string]HealthCheck
	timeout time.Duration
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealthCheck adds a named dependency probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithHealthTimeout bounds each health probe. Defaults to two seconds.
func WithHealthTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New returns a Server for engine.
func New(engine *tokenauth.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  slog.Default(),
		checks:  map[string]HealthCheck{},
		timeout: 2 * time.Second,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("POST /auth/verify-code", s.handleVerifyCode)
	s.mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	guard := middleware.GuardWithHook(s.onReject,
		middleware.InternalFilter(s.engine.Tokens(), s.engine.Users()),
	)
	s.mux.Handle("GET /users/me", guard(http.HandlerFunc(s.handleMe)))
}

func (s *Server) onReject(r *http.Request, err error) {
	s.engine.Metrics().Inc(tokenauth.MetricInternalRejected)
	s.logger.DebugContext(r.Context(), "request unauthorized",
		"path", r.URL.Path,
		"request_id", tokenauth.RequestIDFromContext(r.Context()),
		"error", err,
	)
}

// ServeHTTP assigns a request id, taken from X-Request-ID when it looks sane, and
// dispatches the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	s.mux.ServeHTTP(w, r.WithContext(tokenauth.WithRequestID(r.Context(), id)))
}

type tokenPairResponse struct {
	UserID       string `json:"userId,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "register", err)
		return
	}

	reg, err := s.engine.Register(r.Context(), req.Nickname, req.Email, req.Password)
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenPairResponse{
		UserID:       reg.UserID,
		AccessToken:  reg.AccessToken,
		RefreshToken: reg.RefreshToken,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "login", err)
		return
	}

	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "refresh", err)
		return
	}

	access, err := s.engine.Refresh(r.Context(), req.Email, req.RefreshToken)
	if err != nil {
		s.fail(w, r, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "logout", err)
		return
	}

	if err := s.engine.Logout(r.Context(), req.Email); err != nil {
		s.fail(w, r, "logout", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "forgot-password", err)
		return
	}

	if err := s.engine.RequestReset(r.Context(), req.Email); err != nil {
		s.fail(w, r, "forgot-password", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "verify-code", err)
		return
	}

	valid, err := s.engine.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		s.fail(w, r, "verify-code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, "reset-password", err)
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		s.fail(w, r, "reset-password", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

type meResponse struct {
	UserID   string   `json:"userId"`
	Email    string   `json:"email"`
	Nickname string   `json:"nickname"`
	Roles    []string `json:"roles"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, found := middleware.IdentityFromContext(r.Context())
	if !found {
		s.fail(w, r, "me", tokenauth.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:   id.UserID,
		Email:    id.Subject,
		Nickname: id.Nickname,
		Roles:    id.Authorities,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{}
	status := http.StatusOK

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		err := check(ctx)
		cancel()
		if err != nil {
			result[name] = "unavailable"
			status = http.StatusServiceUnavailable
			s.logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
			continue
		}
		result[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": result})
}
