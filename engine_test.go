package tokenauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDirectory struct {
	mu                  sync.Mutex
	passwords           map[string]string
	updateErr           error
	findErr             error
	findCalls           int
	updatePasswordCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{passwords: map[string]string{
		"alice@example.com": "correct-password-123",
	}}
}

func (d *fakeDirectory) FindUser(_ context.Context, email string) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.findCalls++
	if d.findErr != nil {
		return UserRecord{}, d.findErr
	}
	pw, ok := d.passwords[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return UserRecord{ID: "id-" + email, Email: email, Nickname: "nick", PasswordHash: pw, Roles: []string{"USER"}}, nil
}

func (d *fakeDirectory) VerifyPassword(_ context.Context, user UserRecord, plaintext string) (bool, error) {
	return user.PasswordHash == plaintext, nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, email, newPassword string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updatePasswordCalls++
	if d.updateErr != nil {
		return d.updateErr
	}
	if _, ok := d.passwords[email]; !ok {
		return ErrUserNotFound
	}
	d.passwords[email] = newPassword
	return nil
}

func (d *fakeDirectory) password(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.passwords[email]
}

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: map[string][]string{}}
}

func (n *captureNotifier) Deliver(_ context.Context, destination, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[destination] = append(n.codes[destination], code)
	return n.err
}

func (n *captureNotifier) last(destination string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	codes := n.codes[destination]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

func (n *captureNotifier) count(destination string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.codes[destination])
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	dir      *fakeDirectory
	notifier *captureNotifier
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	clock := &testClock{now: time.Now().Truncate(time.Second)}
	dir := newFakeDirectory()
	notifier := newCaptureNotifier()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(dir).
		WithNotifier(notifier).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, rdb: rdb, clock: clock, dir: dir, notifier: notifier}
}

const (
	alice         = "alice@example.com"
	alicePassword = "correct-password-123"
)

func TestBuildRequiresCollaborators(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().WithConfig(testConfig()).WithUserDirectory(newFakeDirectory()).WithNotifier(newCaptureNotifier()).Build(); err == nil {
		t.Fatal("expected missing store to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithNotifier(newCaptureNotifier()).Build(); err == nil {
		t.Fatal("expected missing directory to fail")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(newFakeDirectory()).Build(); err == nil {
		t.Fatal("expected missing notifier to fail")
	}
	if _, err := New().WithRedis(rdb).WithUserDirectory(newFakeDirectory()).WithNotifier(newCaptureNotifier()).Build(); err == nil {
		t.Fatal("expected missing secret to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(newFakeDirectory()).WithNotifier(newCaptureNotifier())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Login(ctx, alice, alicePassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(ctx, alice); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.VerifyCode(ctx, alice, "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if got := e.NotifyDropped(); got != 0 {
		t.Fatalf("expected 0 dropped, got %d", got)
	}
}

func TestEngineMetricsSnapshotCountsOutcomes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, alice, alicePassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.engine.Login(ctx, alice, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
}
