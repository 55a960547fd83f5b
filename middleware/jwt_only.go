package middleware

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/jwt"
)

// TokenParser parses a bearer token. *tokenauth.TokenService implements it.
type TokenParser interface {
	Claims(token string) (*jwt.Claims, error)
}

// PublicPaths lists the requests EdgeFilter lets through without a token.
type PublicPaths struct {
	// Prefixes match the start of the URL path.
	Prefixes []string
	// Contains match anywhere in the URL path.
	Contains []string
}

// DefaultPublicPaths allows the auth endpoints and the API documentation.
func DefaultPublicPaths() PublicPaths {
	return PublicPaths{
		Prefixes: []string{"/auth/", "/swagger-ui/", "/v3/api-docs"},
		Contains: []string{"swagger-ui.html"},
	}
}

// Match reports whether path is public.
func (p PublicPaths) Match(path string) bool {
	for _, prefix := range p.Prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, part := range p.Contains {
		if part != "" && strings.Contains(path, part) {
			return true
		}
	}
	return false
}

// EdgeFilter returns the boundary filter. Public paths pass untouched; every other request
// needs an unexpired access token with a subject.
//
// Dot segments are resolved before matching, and a request whose path changed is passed on
// with the cleaned path, so what is checked is what the upstream receives.
func EdgeFilter(tokens TokenParser, public PublicPaths) Filter {
	return func(r *http.Request) (*http.Request, error) {
		r = withCleanPath(r)
		if public.Match(r.URL.Path) {
			return r, nil
		}
		if _, err := accessClaims(tokens, r); err != nil {
			return nil, err
		}
		return r, nil
	}
}

// canonicalPath resolves "." and ".." segments and duplicate slashes in p. A trailing slash
// is kept.
func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func withCleanPath(r *http.Request) *http.Request {
	cleaned := canonicalPath(r.URL.Path)
	if cleaned == r.URL.Path {
		return r
	}
	out := r.Clone(r.Context())
	out.URL.Path = cleaned
	out.URL.RawPath = ""
	return out
}

func accessClaims(tokens TokenParser, r *http.Request) (*jwt.Claims, error) {
	if tokens == nil {
		return nil, fmt.Errorf("%w: no token parser", tokenauth.ErrUnauthorized)
	}

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", tokenauth.ErrUnauthorized)
	}

	claims, err := tokens.Claims(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tokenauth.ErrUnauthorized, err)
	}
	if claims.Kind != jwt.KindAccess {
		return nil, fmt.Errorf("%w: not an access token", tokenauth.ErrUnauthorized)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", tokenauth.ErrUnauthorized)
	}
	return claims, nil
}
