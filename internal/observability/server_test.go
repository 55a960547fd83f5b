package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsIncludeExtraCollectors(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tokenauth_test_total", Help: "test"})
	counter.Add(3)

	s, err := NewServer("127.0.0.1:0", nil, quietLogger(), counter)
	require.NoError(t, err)

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tokenauth_test_total 3")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDuplicateCollectorFails(t *testing.T) {
	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "a"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "a"})

	_, err := NewServer("127.0.0.1:0", nil, quietLogger(), a, b)
	assert.Error(t, err)
}

func TestReadiness(t *testing.T) {
	var failing error
	s, err := NewServer("127.0.0.1:0", func(context.Context) error { return failing }, quietLogger())
	require.NoError(t, err)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/liveness").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/readiness").Code)

	failing = errors.New("redis down")
	rec := get(t, h, "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready\n", rec.Body.String())
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/liveness").Code)
}

func TestStartStop(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", nil, quietLogger())
	require.NoError(t, err)

	errCh, err := s.Start()
	require.NoError(t, err)
	require.NotEmpty(t, s.Addr())

	_, err = s.Start()
	assert.Error(t, err, "second start must fail")

	resp, err := http.Get("http://" + s.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))

	_, open := <-errCh
	assert.False(t, open)
}
