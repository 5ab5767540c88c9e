package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// User-facing messages.
const (
	msgWrongPassword = "Contraseña incorrecta"
	msgEmptyQuery    = "Por favor escribe una consulta"
	msgMissingKeys   = "Faltan API Keys"
	msgNoAnswer      = "No se pudo obtener una respuesta. Intenta nuevamente."
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON body returned by POST /api/v1/query.
type QueryResponse struct {
	Answer   string `json:"answer,omitempty"`
	Agent    string `json:"agent,omitempty"`
	Category string `json:"category,omitempty"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody reads a size-capped JSON body into v and writes the 400/413
// itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.auth.Login(req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgWrongPassword)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if len(s.deps.MissingKeys) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, QueryResponse{Error: msgMissingKeys})
		return
	}

	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, QueryResponse{Error: msgEmptyQuery})
		return
	}

	res := s.deps.Router.Route(r.Context(), req.Query, s.deps.Docs)
	if !res.OK {
		s.logger.Warn("query produced no answer", "category", res.Decision.Category)
		writeJSON(w, http.StatusBadGateway, QueryResponse{Error: msgNoAnswer})
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:   res.Answer,
		Agent:    res.Label,
		Category: string(res.Decision.Category),
		Fallback: res.Decision.Fallback,
	})
}
