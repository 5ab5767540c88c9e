package gateway

import (
	"context"
	"net/http"
	"strings"

	"agent-orchestrator/internal/usecase"
)

// Authenticator opens and checks gateway sessions.
type Authenticator interface {
	Login(password string) (usecase.Session, error)
	Validate(token string) (usecase.Session, error)
	Logout(token string)
	Active() int
}

type sessionKey struct{}

// SessionFromContext returns the session attached by requireSession.
func SessionFromContext(ctx context.Context) (usecase.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(usecase.Session)
	return s, ok
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireSession rejects requests without a live session token.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := s.auth.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "session expired or invalid")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}
