package agentapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/config"
	"agent-orchestrator/internal/infra/logger"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerClient wraps an AgentClient with circuit breaker protection.
// Only connection failures count against the breaker. Remote "error"
// statuses and poll timeouts come from a reachable agent.
type CircuitBreakerClient struct {
	name    string
	inner   domain.AgentClient
	breaker *gobreaker.CircuitBreaker[string]
}

// Compile-time interface check.
var _ domain.AgentClient = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps inner with a circuit breaker named after the role.
// Zero-valued settings fall back to defaults.
func NewCircuitBreakerClient(name string, inner domain.AgentClient, cfg config.CircuitBreakerConfig, log *slog.Logger) *CircuitBreakerClient {
	log = logger.OrDiscard(log)

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "agent:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return !errors.Is(err, domain.ErrConnection)
		},
	})

	return &CircuitBreakerClient{name: name, inner: inner, breaker: cb}
}

// StartConversation implements domain.AgentClient through the breaker.
func (c *CircuitBreakerClient) StartConversation(ctx context.Context, identity domain.AgentIdentity, message string, files []domain.PrivateFile) (domain.ConversationHandle, error) {
	var handle domain.ConversationHandle
	_, err := c.breaker.Execute(func() (string, error) {
		var startErr error
		handle, startErr = c.inner.StartConversation(ctx, identity, message, files)
		return "", startErr
	})
	if err != nil {
		return domain.ConversationHandle{}, c.wrap(err)
	}
	return handle, nil
}

// PollForAnswer implements domain.AgentClient through the breaker.
func (c *CircuitBreakerClient) PollForAnswer(ctx context.Context, identity domain.AgentIdentity, handle domain.ConversationHandle, maxAttempts int) (string, error) {
	answer, err := c.breaker.Execute(func() (string, error) {
		return c.inner.PollForAnswer(ctx, identity, handle, maxAttempts)
	})
	if err != nil {
		return "", c.wrap(err)
	}
	return answer, nil
}

// State returns the current circuit breaker state for monitoring.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerClient) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("agent %q: %w: %w", c.name, domain.ErrCircuitOpen, err)
	}
	return err
}
