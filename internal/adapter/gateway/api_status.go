package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service       string            `json:"service"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Agents        AgentsStatus      `json:"agents"`
	Docs          DocsStatus        `json:"docs"`
	Sessions      SessionStatus     `json:"sessions"`
	Breakers      map[string]string `json:"breakers,omitempty"`
}

// AgentsStatus reports whether every role has a credential.
type AgentsStatus struct {
	BaseURL    string   `json:"base_url"`
	KeysOK     bool     `json:"keys_ok"`
	MissingEnv []string `json:"missing_env,omitempty"`
}

// DocsStatus reports the FAQ reference text in use.
type DocsStatus struct {
	Loaded bool   `json:"loaded"`
	Chars  int    `json:"chars"`
	Source string `json:"source,omitempty"`
}

// SessionStatus holds session counts.
type SessionStatus struct {
	Active int `json:"active"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service:       "agent-orchestrator",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Agents: AgentsStatus{
			BaseURL:    s.deps.BaseURL,
			KeysOK:     len(s.deps.MissingKeys) == 0,
			MissingEnv: s.deps.MissingKeys,
		},
		Docs: DocsStatus{
			Loaded: !s.deps.Docs.Empty(),
			Chars:  s.deps.Docs.Len(),
			Source: s.deps.Docs.Source,
		},
		Sessions: SessionStatus{Active: s.auth.Active()},
	}
	if s.deps.Breakers != nil {
		resp.Breakers = s.deps.Breakers()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
