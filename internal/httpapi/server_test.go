package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/notify"
	"github.com/geochat/tokenauth/password"
	"github.com/geochat/tokenauth/userdir"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	alice         = "alice@example.com"
	alicePassword = "correct-password-123"
)

type outbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (o *outbox) last(email string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[email]
}

type testEnv struct {
	mr      *miniredis.Miniredis
	engine  *tokenauth.Engine
	server  *Server
	users   *userdir.Memory
	outbox  *outbox
	healthy error
}

func newTestEnv(t *testing.T, mutate func(*tokenauth.Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	users := userdir.NewMemory(userdir.WithHasher(hasher))
	_, err = users.Seed("alice", alice, alicePassword)
	require.NoError(t, err)

	box := &outbox{codes: map[string]string{}}
	notifier := notify.Func(func(_ context.Context, destination, code string) error {
		box.mu.Lock()
		defer box.mu.Unlock()
		box.codes[destination] = code
		return nil
	})

	cfg := tokenauth.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(users).
		WithNotifier(notifier).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	env := &testEnv{mr: mr, engine: engine, users: users, outbox: box}
	env.server = New(engine,
		WithLogger(logger),
		WithHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		WithHealthCheck("directory", func(context.Context) error { return env.healthy }),
	)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestRegisterMeRefreshLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"nickname": "bob",
		"email":    "bob@example.com",
		"password": "bob-password-1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, body["userId"])
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	rec, body = env.do(t, http.MethodGet, "/users/me", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob@example.com", body["email"])
	assert.Equal(t, "bob", body["nickname"])
	assert.Equal(t, []any{"USER"}, body["roles"])

	rec, body = env.do(t, http.MethodPost, "/auth/refresh", map[string]string{"email": "bob@example.com", "refreshToken": refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["accessToken"])

	rec, body = env.do(t, http.MethodPost, "/auth/logout", map[string]string{"email": "bob@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = env.do(t, http.MethodPost, "/auth/refresh", map[string]string{"email": "bob@example.com", "refreshToken": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])

	rec, body = env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"nickname": "bobby",
		"email":    "bob@example.com",
		"password": "bob-password-1",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already exists", body["error"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotContains(t, body, "userId")

	rec, body = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"error": "unauthorized"}, body)

	rec, _ = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": "whatever"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, uint64(1), env.engine.Metrics().Value(tokenauth.MetricLoginSuccess))
	assert.Equal(t, uint64(2), env.engine.Metrics().Value(tokenauth.MetricLoginFailure))
}

func TestLoginFormEncoded(t *testing.T) {
	env := newTestEnv(t, nil)

	form := url.Values{"email": {alice}, "password": {alicePassword}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/auth/login?"+form.Encode(), nil)
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "not-an-email", "password": ""}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request", body["error"])
	fields, _ := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	rec, _ = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword, "extra": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/auth/verify-code", map[string]string{"email": alice, "code": "12ab56"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")
	raw := httptest.NewRecorder()
	env.server.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, raw.Code)

	raw = httptest.NewRecorder()
	env.server.ServeHTTP(raw, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, raw.Code)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": alice}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	code := env.outbox.last(alice)
	require.Len(t, code, 6)

	for i := 0; i < 2; i++ {
		rec, body = env.do(t, http.MethodPost, "/auth/verify-code", map[string]string{"email": alice, "code": code}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["valid"])
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec, body = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"email": alice, "code": wrong, "newPassword": "brand-new-password"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired code", body["error"])

	rec, _ = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"email": alice, "code": code, "newPassword": "brand-new-password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = env.do(t, http.MethodPost, "/auth/verify-code", map[string]string{"email": alice, "code": code}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])

	rec, _ = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": "brand-new-password"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMixedCaseEmailSharesOneSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refresh, _ := body["refreshToken"].(string)

	rec, _ = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "Alice@Example.com", "password": alicePassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []string
	for _, key := range env.mr.Keys() {
		if strings.HasPrefix(key, "refresh:") {
			sessions = append(sessions, key)
		}
	}
	assert.Equal(t, []string{"refresh:" + alice}, sessions)

	rec, _ = env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ALICE@EXAMPLE.COM"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	code := env.outbox.last(alice)
	require.Len(t, code, 6)

	rec, _ = env.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"email": "Alice@Example.com", "code": code, "newPassword": "brand-new-password"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/auth/refresh", map[string]string{"email": alice, "refreshToken": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.mr.Exists("refresh:"+alice))
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, env.outbox.last("nobody@example.com"))
}

func TestForgotPasswordRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *tokenauth.Config) {
		cfg.ResetCode.RequestLimit = 1
	})

	rec, _ := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": alice}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": alice}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too many requests", body["error"])
}

func TestMeRejects(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"error": "unauthorized"}, body)

	pair, err := env.engine.Login(context.Background(), alice, alicePassword)
	require.NoError(t, err)

	rec, _ = env.do(t, http.MethodGet, "/users/me", nil, bearer(pair.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are not bearer credentials")

	assert.Equal(t, uint64(2), env.engine.Metrics().Value(tokenauth.MetricInternalRejected))
}

func TestStoreOutageIs503(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.Close()

	rec, body := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": alice, "password": alicePassword}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service unavailable", body["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	env.healthy = errors.New("pool exhausted")
	rec, body = env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok", "directory": "unavailable"}, body["checks"])
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodGet, "/healthz", nil, http.Header{"X-Request-Id": []string{"req-123"}})
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec, _ = env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{tokenauth.ErrInvalidCredentials, http.StatusUnauthorized},
		{tokenauth.ErrInvalidRefreshToken, http.StatusUnauthorized},
		{tokenauth.ErrUnauthorized, http.StatusUnauthorized},
		{tokenauth.ErrInvalidOrExpiredCode, http.StatusBadRequest},
		{tokenauth.ErrInvalidRequest, http.StatusBadRequest},
		{tokenauth.ErrResetRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: dial tcp", tokenauth.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{tokenauth.ErrUserDirectoryUnavailable, http.StatusServiceUnavailable},
		{tokenauth.ErrUserExists, http.StatusConflict},
		{tokenauth.ErrRegistrationDisabled, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
