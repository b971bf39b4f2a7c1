package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/complyhq/comply/internal/database"
)

type contextKey string

const memberContextKey contextKey = "member"

// requireMember resolves the caller's organization membership from the
// bearer token. Write targets always use the resolved org, never a
// client-supplied one.
func (s *Server) requireMember(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		member, err := s.db.MemberByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusForbidden, "no organization membership")
			return
		}

		ctx := context.WithValue(r.Context(), memberContextKey, member)
		next(w, r.WithContext(ctx))
	}
}

// memberFrom returns the authenticated member stored on the request context.
func memberFrom(r *http.Request) *database.Member {
	member, _ := r.Context().Value(memberContextKey).(*database.Member)
	return member
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Token")
}

// logRequests emits one access log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
