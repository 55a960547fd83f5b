package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/geochat/tokenauth"
	validation "github.com/go-ozzo/ozzo-validation"
)

const maxBodyBytes = 64 << 10

type formRequest interface {
	validation.Validatable
	fromForm(values url.Values)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

var errUnsupportedMedia = errors.New("unsupported media type")

// decode fills dst from a JSON body, or from form values for any other content type, then
// validates it.
func decode(w http.ResponseWriter, r *http.Request, dst formRequest) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		var err error
		if mediaType, _, err = mime.ParseMediaType(ct); err != nil {
			return errUnsupportedMedia
		}
	}

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("%w: %v", tokenauth.ErrInvalidRequest, err)
		}
	case "", "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %v", tokenauth.ErrInvalidRequest, err)
		}
		dst.fromForm(r.Form)
	default:
		return errUnsupportedMedia
	}

	return dst.Validate()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(err error) (int, string) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported media type"
	case errors.Is(err, tokenauth.ErrInvalidCredentials),
		errors.Is(err, tokenauth.ErrInvalidRefreshToken),
		errors.Is(err, tokenauth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, tokenauth.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest, "invalid or expired code"
	case errors.Is(err, tokenauth.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, tokenauth.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, tokenauth.ErrRegistrationDisabled):
		return http.StatusForbidden, "registration disabled"
	case errors.Is(err, tokenauth.ErrResetRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, tokenauth.ErrStoreUnavailable),
		errors.Is(err, tokenauth.ErrUserDirectoryUnavailable),
		errors.Is(err, tokenauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	body := errorBody{Error: msg}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		body.Fields = make(map[string]string, len(verrs))
		for field, ferr := range verrs {
			body.Fields[field] = ferr.Error()
		}
	}

	attrs := []any{"op", op, "status", status, "request_id", tokenauth.RequestIDFromContext(r.Context())}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", append(attrs, "error", err)...)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", append(attrs, "error", err)...)
	}

	writeJSON(w, status, body)
}
