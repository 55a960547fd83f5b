package userdir

import (
	"context"
	"errors"

	"github.com/geochat/tokenauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

const uniqueViolation = "23505"

// Schema creates the users table read by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	nickname      TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	roles         TEXT[] NOT NULL DEFAULT '{USER}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email));
CREATE UNIQUE INDEX IF NOT EXISTS users_nickname_lower_idx ON users (LOWER(nickname));
`

// pgxPool is the subset of *pgxpool.Pool used here; pgxmock pools satisfy it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres is a directory over the users table.
type Postgres struct {
	pool pgxPool
	opts options
}

// NewPostgres returns a directory using pool.
func NewPostgres(pool pgxPool, opts ...Option) *Postgres {
	return &Postgres{pool: pool, opts: buildOptions(opts)}
}

// EnsureSchema applies Schema.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return oops.Code("USERDIR_SCHEMA_FAILED").
			With("operation", "ensure schema").
			Wrap(err)
	}
	return nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return oops.Code("USERDIR_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// FindUser returns the user with email (case-insensitive) or tokenauth.ErrUserNotFound.
func (p *Postgres) FindUser(ctx context.Context, email string) (tokenauth.UserRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id::text, nickname, email, password_hash, roles
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	var user tokenauth.UserRecord
	err := row.Scan(&user.ID, &user.Nickname, &user.Email, &user.PasswordHash, &user.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return tokenauth.UserRecord{}, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(tokenauth.ErrUserNotFound)
	}
	if err != nil {
		return tokenauth.UserRecord{}, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// VerifyPassword checks plaintext against user.PasswordHash.
func (p *Postgres) VerifyPassword(ctx context.Context, user tokenauth.UserRecord, plaintext string) (bool, error) {
	match, err := p.opts.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return false, oops.Code("USER_VERIFY_FAILED").
			With("email", user.Email).
			Wrap(err)
	}
	if !match {
		return false, nil
	}

	if upgrade, err := p.opts.hasher.NeedsUpgrade(user.PasswordHash); err == nil && upgrade {
		if err := p.UpdatePassword(ctx, user.Email, plaintext); err != nil {
			p.opts.logger.WarnContext(ctx, "password rehash failed", "email", user.Email, "error", err)
		}
	}
	return true, nil
}

// UpdatePassword stores a new hash for the user with email.
func (p *Postgres) UpdatePassword(ctx context.Context, email, newPassword string) error {
	hash, err := hashPassword(p.opts.hasher, newPassword)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $1, updated_at = now()
		WHERE LOWER(email) = LOWER($2)
	`, hash, email)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("email", email).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(tokenauth.ErrUserNotFound)
	}
	return nil
}

// CreateUser inserts a user with DefaultRole. Unique violations on email or nickname yield
// tokenauth.ErrUserExists.
func (p *Postgres) CreateUser(ctx context.Context, nickname, email, plaintext string) (tokenauth.UserRecord, error) {
	if normalize(nickname) == "" || normalize(email) == "" {
		return tokenauth.UserRecord{}, tokenauth.ErrInvalidRequest
	}

	hash, err := hashPassword(p.opts.hasher, plaintext)
	if err != nil {
		return tokenauth.UserRecord{}, err
	}

	user := tokenauth.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Nickname:     nickname,
		PasswordHash: hash,
		Roles:        []string{DefaultRole},
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO users (id, nickname, email, password_hash, roles)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Nickname, user.Email, user.PasswordHash, user.Roles)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return tokenauth.UserRecord{}, oops.Code("USER_EXISTS").
				With("email", email).
				With("nickname", nickname).
				Wrap(tokenauth.ErrUserExists)
		}
		return tokenauth.UserRecord{}, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}
