package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/metrics"
	"github.com/hackstack/hack/pkg/types"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	tokenKey     contextKey = "token"
)

// HeaderRequestID correlates responses with server log lines.
const HeaderRequestID = "X-Request-Id"

// HeaderDeadline lets a caller shorten the handler deadline, in
// milliseconds. The server-wide cap still applies.
const HeaderDeadline = "X-Deadline-Ms"

// requestID mints a correlation id for every request and echoes it in the
// response.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instrument records request counts and latency and writes the access log
// line.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())

		log.WithRequestID(requestIDFrom(r.Context())).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// deadline installs the per-request timeout: the shorter of the caller's
// X-Deadline-Ms and the server cap. Handlers surface the expiry as a
// timeout error.
func (s *Server) deadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := RequestCap
		if raw := r.Header.Get(HeaderDeadline); raw != "" {
			if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
				if requested := time.Duration(ms) * time.Millisecond; requested < d {
					d = requested
				}
			}
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate guards the gateway listener. Callers present a bearer
// token; non-GET methods need write scope.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := bearerSecret(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, types.NewCodedError(types.CodeUnauthorized, "authentication required"))
			return
		}
		record, ok := s.opts.Tokens.Verify(secret)
		if !ok {
			writeError(w, r, types.NewCodedError(types.CodeUnauthorized, "authentication required"))
			return
		}
		if r.Method != http.MethodGet && record.Scope != types.ScopeWrite {
			writeError(w, r, types.NewCodedError(types.CodeUnauthorized, "write scope required"))
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, record)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerSecret(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	secret := strings.TrimSpace(header[len(prefix):])
	return secret, secret != ""
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
