package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/AudioPress/audiopress/logger"
)

// withRequestID assigns each request a correlation ID, echoes it in the
// response header and threads it through the log context. An inbound
// X-Request-Id is honored so upstream proxies can correlate.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logger.WithRequestID(r.Context(), id)
		logger.DebugContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withRecovery converts handler panics into a 500 response instead of
// killing the connection.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "Handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authed wraps a handler with the configured authenticator. Without one
// the handler runs open.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authenticator != nil {
			if err := s.authenticator.Authenticate(r); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
		}
		next(w, r)
	}
}

// requestIDFrom returns the correlation ID stored by withRequestID.
func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(logger.ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
