package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/geochat/tokenauth"
)

// Identity is the resolved caller attached by InternalFilter.
type Identity struct {
	Subject     string
	UserID      string
	Nickname    string
	Authorities []string
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by InternalFilter.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// InternalFilter validates the access token like EdgeFilter, then resolves its subject
// through users. An unknown subject or a directory failure rejects the request.
func InternalFilter(tokens TokenParser, users tokenauth.UserDirectory) Filter {
	return func(r *http.Request) (*http.Request, error) {
		claims, err := accessClaims(tokens, r)
		if err != nil {
			return nil, err
		}
		if users == nil {
			return nil, fmt.Errorf("%w: no user directory", tokenauth.ErrUnauthorized)
		}

		user, err := users.FindUser(r.Context(), claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", tokenauth.ErrUnauthorized, err)
		}

		id := Identity{
			Subject:     claims.Subject,
			UserID:      user.ID,
			Nickname:    user.Nickname,
			Authorities: append([]string(nil), user.Roles...),
		}
		return r.WithContext(WithIdentity(r.Context(), id)), nil
	}
}
