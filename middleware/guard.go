package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Filter inspects a request and either returns the request to pass on, possibly with an
// enriched context, or an error that rejects it.
type Filter func(*http.Request) (*http.Request, error)

// RejectHook observes rejected requests. err is the filter error and is never sent to the
// client.
type RejectHook func(r *http.Request, err error)

// Pipeline runs filters in order before next. The first error short-circuits with 401.
func Pipeline(next http.Handler, filters ...Filter) http.Handler {
	return pipeline(next, nil, filters)
}

// Guard adapts filters to the func(http.Handler) http.Handler middleware shape.
func Guard(filters ...Filter) func(http.Handler) http.Handler {
	return GuardWithHook(nil, filters...)
}

// GuardWithHook is Guard with a hook called for every rejection.
func GuardWithHook(onReject RejectHook, filters ...Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return pipeline(next, onReject, filters)
	}
}

func pipeline(next http.Handler, onReject RejectHook, filters []Filter) http.Handler {
	chain := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			chain = append(chain, f)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, filter := range chain {
			out, err := filter(r)
			if err != nil {
				if onReject != nil {
					onReject(r, err)
				}
				writeUnauthorized(w)
				return
			}
			if out != nil {
				r = out
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
