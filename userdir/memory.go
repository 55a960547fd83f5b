package userdir

import (
	"context"
	"strings"
	"sync"

	"github.com/geochat/tokenauth"
	"github.com/google/uuid"
)

// Memory is an in-process directory. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	byEmail   map[string]tokenauth.UserRecord
	nicknames map[string]string
	opts      options
}

// NewMemory returns an empty directory.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		byEmail:   make(map[string]tokenauth.UserRecord),
		nicknames: make(map[string]string),
		opts:      buildOptions(opts),
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FindUser returns the user with email or tokenauth.ErrUserNotFound.
func (m *Memory) FindUser(_ context.Context, email string) (tokenauth.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byEmail[normalize(email)]
	if !ok {
		return tokenauth.UserRecord{}, tokenauth.ErrUserNotFound
	}
	return cloneRecord(user), nil
}

// VerifyPassword checks plaintext against the stored hash of user.
func (m *Memory) VerifyPassword(_ context.Context, user tokenauth.UserRecord, plaintext string) (bool, error) {
	m.mu.RLock()
	stored, ok := m.byEmail[normalize(user.Email)]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	match, err := m.opts.hasher.Verify(plaintext, stored.PasswordHash)
	if err != nil || !match {
		return false, err
	}

	if upgrade, err := m.opts.hasher.NeedsUpgrade(stored.PasswordHash); err == nil && upgrade {
		if err := m.setPassword(stored.Email, plaintext); err != nil {
			m.opts.logger.Warn("password rehash failed", "email", stored.Email, "error", err)
		}
	}
	return true, nil
}

// UpdatePassword replaces the password of the user with email.
func (m *Memory) UpdatePassword(_ context.Context, email, newPassword string) error {
	return m.setPassword(email, newPassword)
}

func (m *Memory) setPassword(email, plaintext string) error {
	hash, err := hashPassword(m.opts.hasher, plaintext)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalize(email)
	user, ok := m.byEmail[key]
	if !ok {
		return tokenauth.ErrUserNotFound
	}
	user.PasswordHash = hash
	m.byEmail[key] = user
	return nil
}

// CreateUser adds a user with DefaultRole. A taken email or nickname yields
// tokenauth.ErrUserExists.
func (m *Memory) CreateUser(_ context.Context, nickname, email, plaintext string) (tokenauth.UserRecord, error) {
	return m.create(nickname, email, plaintext, []string{DefaultRole})
}

// Seed adds a user with explicit roles.
func (m *Memory) Seed(nickname, email, plaintext string, roles ...string) (tokenauth.UserRecord, error) {
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	return m.create(nickname, email, plaintext, roles)
}

func (m *Memory) create(nickname, email, plaintext string, roles []string) (tokenauth.UserRecord, error) {
	if normalize(nickname) == "" || normalize(email) == "" {
		return tokenauth.UserRecord{}, tokenauth.ErrInvalidRequest
	}

	hash, err := hashPassword(m.opts.hasher, plaintext)
	if err != nil {
		return tokenauth.UserRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	emailKey, nickKey := normalize(email), normalize(nickname)
	if _, ok := m.byEmail[emailKey]; ok {
		return tokenauth.UserRecord{}, tokenauth.ErrUserExists
	}
	if _, ok := m.nicknames[nickKey]; ok {
		return tokenauth.UserRecord{}, tokenauth.ErrUserExists
	}

	user := tokenauth.UserRecord{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(email),
		Nickname:     strings.TrimSpace(nickname),
		PasswordHash: hash,
		Roles:        append([]string(nil), roles...),
	}
	m.byEmail[emailKey] = user
	m.nicknames[nickKey] = emailKey
	return cloneRecord(user), nil
}

// Len returns the number of users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byEmail)
}

func cloneRecord(u tokenauth.UserRecord) tokenauth.UserRecord {
	u.Roles = append([]string(nil), u.Roles...)
	return u
}
