package domain

import (
	"context"
	"encoding/json"
)

// AgentIdentity is the opaque credential (X-Api-Key) of one remote agent.
type AgentIdentity string

// IsZero reports whether the identity is unset.
func (id AgentIdentity) IsZero() bool { return id == "" }

// String redacts the credential so it never lands in logs verbatim.
func (id AgentIdentity) String() string {
	if len(id) <= 4 {
		return "****"
	}
	return "****" + string(id[len(id)-4:])
}

// AgentRole names the logical job a remote agent performs.
type AgentRole string

const (
	RoleClassifier AgentRole = "classifier"
	RoleFAQ        AgentRole = "faq"
	RoleReports    AgentRole = "reports"
)

// ConversationHandle identifies one remote conversation. It is valid for a
// single answer retrieval and is discarded afterwards.
type ConversationHandle struct {
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id"`
}

// Valid reports whether both identifiers are present.
func (h ConversationHandle) Valid() bool {
	return h.ConversationID != "" && h.RequestID != ""
}

// AgentStatus is the lifecycle state reported by a poll.
type AgentStatus string

const (
	StatusInProgress AgentStatus = "in_progress"
	StatusFinished   AgentStatus = "finished"
	StatusError      AgentStatus = "error"
)

// AgentResponse is a single poll result.
type AgentResponse struct {
	Status AgentStatus     `json:"status"`
	Answer string          `json:"answer,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// PrivateFile is an opaque entry forwarded as private_user_files.
type PrivateFile = json.RawMessage

// AgentClient drives the create/poll protocol of a remote agent.
type AgentClient interface {
	StartConversation(ctx context.Context, identity AgentIdentity, message string, files []PrivateFile) (ConversationHandle, error)
	PollForAnswer(ctx context.Context, identity AgentIdentity, handle ConversationHandle, maxAttempts int) (string, error)
}

// AgentInvoker turns a message into an answer from the agent serving role.
// A false ok means the invocation failed; diagnostics are logged, not returned.
type AgentInvoker interface {
	Invoke(ctx context.Context, role AgentRole, message string, supporting SupportingContext) (answer string, ok bool)
}

// IdentityResolver maps a role to its configured credential.
type IdentityResolver interface {
	Identity(role AgentRole) (AgentIdentity, error)
}

// StaticIdentities is an immutable role -> credential table.
type StaticIdentities map[AgentRole]AgentIdentity

// Identity implements IdentityResolver.
func (s StaticIdentities) Identity(role AgentRole) (AgentIdentity, error) {
	id, ok := s[role]
	if !ok || id.IsZero() {
		return "", NewDomainError("Identity", ErrRoleNotConfigured, string(role))
	}
	return id, nil
}
