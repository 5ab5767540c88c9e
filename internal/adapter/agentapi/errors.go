package agentapi

import (
	"fmt"
	"net/http"

	"agent-orchestrator/internal/domain"
)

var (
	_ domain.AgentDiagnostics = (*ConnectionError)(nil)
	_ domain.AgentDiagnostics = (*RemoteAgentError)(nil)
	_ domain.AgentDiagnostics = (*TimeoutError)(nil)
	_ domain.AgentDiagnostics = (*UnrecognizedStatusError)(nil)
)

// maxErrorBody bounds how much of a response body is echoed in Error().
const maxErrorBody = 512

// ConnectionError is a transport failure or a non-200 response from either
// endpoint. StatusCode is 0 when no response was received.
type ConnectionError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: API error %d: %v: %s", e.Op, e.StatusCode, e.Err, truncate(e.Body))
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: API error %d: %s", e.Op, e.StatusCode, truncate(e.Body))
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *ConnectionError) HTTPStatus() int { return e.StatusCode }
func (e *ConnectionError) Payload() string { return truncate(e.Body) }

func (e *ConnectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrConnection}
	}
	return []error{domain.ErrConnection, e.Err}
}

// RemoteAgentError means the agent itself reported status "error".
type RemoteAgentError struct {
	ConversationID string
	Raw            []byte
}

func (e *RemoteAgentError) Error() string {
	return fmt.Sprintf("conversation %s: %s: %s", e.ConversationID, domain.ErrRemoteAgent, truncate(string(e.Raw)))
}

func (e *RemoteAgentError) Unwrap() error    { return domain.ErrRemoteAgent }
func (e *RemoteAgentError) HTTPStatus() int { return http.StatusOK }
func (e *RemoteAgentError) Payload() string { return truncate(string(e.Raw)) }

// TimeoutError means every poll attempt came back in_progress.
type TimeoutError struct {
	ConversationID string
	Attempts       int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("conversation %s: %s after %d attempts", e.ConversationID, domain.ErrPollTimeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error    { return domain.ErrPollTimeout }
func (e *TimeoutError) HTTPStatus() int { return http.StatusOK }
func (e *TimeoutError) Payload() string { return "" }

// UnrecognizedStatusError is returned for a status outside
// in_progress/finished/error.
type UnrecognizedStatusError struct {
	ConversationID string
	Status         string
	Raw            []byte
}

func (e *UnrecognizedStatusError) Error() string {
	return fmt.Sprintf("conversation %s: %s %q: %s", e.ConversationID, domain.ErrUnrecognizedStatus, e.Status, truncate(string(e.Raw)))
}

func (e *UnrecognizedStatusError) Unwrap() error    { return domain.ErrUnrecognizedStatus }
func (e *UnrecognizedStatusError) HTTPStatus() int { return http.StatusOK }
func (e *UnrecognizedStatusError) Payload() string { return truncate(string(e.Raw)) }

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "...(truncated)"
}
