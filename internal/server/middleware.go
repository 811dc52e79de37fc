package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sposlearning/sposwiki/internal/auth"
	"github.com/sposlearning/sposwiki/internal/pathkey"
	"github.com/sposlearning/sposwiki/internal/server/dto"
	"github.com/sposlearning/sposwiki/internal/server/ratelimit"
	"github.com/sposlearning/sposwiki/internal/storage"
)

type ctxKey int

const viewerKey ctxKey = iota

// viewerFrom returns the request's viewer, anonymous when the bearer
// token was absent.
func viewerFrom(ctx context.Context) auth.Viewer {
	if v, ok := ctx.Value(viewerKey).(auth.Viewer); ok {
		return v
	}
	return auth.Anonymous
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// limited resolves the viewer, applies the rate limit and funnels
// handler errors through the structured error writer. The viewer travels
// in the request context only; concurrent requests never share identity.
func (s *Server) limited(limit *ratelimit.Limiter, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limit.Allow(clientIP(r)) {
			writeError(w, r, dto.RateLimited())
			return
		}
		viewer, err := s.verifier.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), viewerKey, viewer))
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

// admin is limited plus an authentication requirement.
func (s *Server) admin(limit *ratelimit.Limiter, fn handlerFunc) http.Handler {
	return s.limited(limit, func(w http.ResponseWriter, r *http.Request) error {
		if !viewerFrom(r.Context()).IsAuthenticated() {
			return dto.Unauthorized()
		}
		return fn(w, r)
	})
}

// logged emits one request log line per call.
func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.InfoContext(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur", time.Since(start).Round(time.Millisecond),
			"ip", clientIP(r))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// clientIP extracts the caller's address, trusting X-Forwarded-For from
// the fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// writeError maps an error to its API representation. Service sentinel
// errors become the matching structured error; everything else is a 500
// with the detail kept out of the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode() >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	resp := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: apiErr.Code(), Message: apiErr.Error()},
		Details: apiErr.Details(),
	}
	_ = writeJSON(w, apiErr.StatusCode(), resp)
}

func toAPIError(err error) dto.ErrorWithStatus {
	var apiErr *dto.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, storage.ErrPageNotFound):
		return dto.NotFound("Page")
	case errors.Is(err, storage.ErrFeedbackNotFound):
		return dto.NotFound("Feedback")
	case errors.Is(err, storage.ErrPageExists):
		return dto.Conflict(err.Error())
	case errors.Is(err, storage.ErrTitleEmpty):
		return dto.MissingField("title")
	case errors.Is(err, storage.ErrMessageEmpty):
		return dto.MissingField("message")
	case errors.Is(err, storage.ErrEmptyDestination):
		return dto.MissingField("content")
	case errors.Is(err, storage.ErrUploadFailed):
		return dto.UploadFailed(err)
	case errors.Is(err, storage.ErrNotEditable),
		errors.Is(err, storage.ErrInvalidType),
		errors.Is(err, storage.ErrInvalidAccessLevel):
		return dto.BadRequest(err.Error())
	case errors.Is(err, storage.ErrRateLimited):
		return dto.RateLimited()
	case errors.Is(err, pathkey.ErrEmptyName), errors.Is(err, pathkey.ErrTooDeep):
		return dto.BadRequest(err.Error())
	case errors.Is(err, auth.ErrReauthFailed):
		return dto.ReauthFailed()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		return dto.Unauthorized()
	default:
		return dto.InternalWithError("Unexpected error", err)
	}
}
