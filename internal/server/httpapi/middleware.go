package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/server/auth"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caregiver behind a request, resolved from
// either a Bearer access token or an API key.
type Principal struct {
	CaregiverID string
	Email       string
	Name        string
}

// PrincipalFromContext returns the request's principal, or nil for
// unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		return p
	}
	return nil
}

// requestLogger logs every request with method, path, status, and duration.
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			msg := "request"
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(duration.Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"remote_addr", r.RemoteAddr,
			}
			switch {
			case ww.status >= 500:
				log.Error(r.Context(), msg, args...)
			case ww.status >= 400:
				log.Warn(r.Context(), msg, args...)
			default:
				log.Info(r.Context(), msg, args...)
			}
		})
	}
}

// authenticate validates request credentials and attaches a Principal to the
// context. Two methods are accepted:
//
//  1. API key via the X-API-Key header
//  2. JWT Bearer token via the Authorization header
//
// Requests carrying neither, or carrying invalid credentials, get a 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var principal *Principal

		if secret := r.Header.Get("X-API-Key"); secret != "" {
			owner, err := s.apiKeys.Validate(r.Context(), secret)
			if err != nil {
				writeError(w, err)
				return
			}
			if owner == nil {
				writeErrorMessage(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			principal = &Principal{CaregiverID: owner.ID, Email: owner.Email, Name: owner.Name}
		}

		if principal == nil {
			header := r.Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				token := strings.TrimPrefix(header, "Bearer ")
				claims, err := auth.ParseToken(token, s.accessSecret)
				if err != nil {
					writeError(w, err)
					return
				}
				principal = &Principal{CaregiverID: claims.UserID, Email: claims.Email, Name: claims.Name}
			}
		}

		if principal == nil {
			writeErrorMessage(w, http.StatusUnauthorized,
				"authentication required: provide a Bearer token or X-API-Key header")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter captures the status code and bytes written for logging.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
