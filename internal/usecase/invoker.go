package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/logger"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/infra/tracer"
)

// Invocation stages, used as the "stage" log attribute and metric label.
const (
	StageResolve = "resolve"
	StageStart   = "start"
	StagePoll    = "poll"
	StageDone    = "done"
)

// ClientLookup resolves the AgentClient serving a role.
type ClientLookup interface {
	Get(role domain.AgentRole) (domain.AgentClient, error)
}

// InvokeError records which stage of an invocation failed.
type InvokeError struct {
	Role  domain.AgentRole
	Stage string
	Err   error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invoke %s agent: %s: %v", e.Role, e.Stage, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }

// Invoker runs one create + poll cycle against the agent serving a role.
// It holds no per-call state and is safe for concurrent use.
type Invoker struct {
	clients     ClientLookup
	identities  domain.IdentityResolver
	maxAttempts int
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// Compile-time interface check.
var _ domain.AgentInvoker = (*Invoker)(nil)

// NewInvoker creates an Invoker. maxAttempts <= 0 defers to each client's default.
func NewInvoker(clients ClientLookup, identities domain.IdentityResolver, maxAttempts int, log *slog.Logger, rec metrics.Recorder) *Invoker {
	return &Invoker{
		clients:     clients,
		identities:  identities,
		maxAttempts: maxAttempts,
		logger:      logger.OrDiscard(log),
		metrics:     metrics.OrNop(rec),
	}
}

// ComposeMessage prefixes message with the supporting context, if any.
func ComposeMessage(message string, supporting domain.SupportingContext) string {
	if supporting.Empty() {
		return message
	}
	var b strings.Builder
	b.Grow(len(supporting.Text) + len(message) + 64)
	b.WriteString("Contexto de documentación:\n\n")
	b.WriteString(supporting.Text)
	b.WriteString("\n\n---\n\nPregunta del usuario: ")
	b.WriteString(message)
	return b.String()
}

// Call invokes the agent for role and returns its answer or an *InvokeError.
// A failed start never polls.
func (i *Invoker) Call(ctx context.Context, role domain.AgentRole, message string, supporting domain.SupportingContext) (answer string, err error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanInvoke)
	span.SetAttributes(
		tracer.StringAttr("agent.role", string(role)),
		tracer.BoolAttr("context.attached", !supporting.Empty()),
	)
	start := time.Now()
	stage := StageResolve
	defer func() {
		i.metrics.ObserveCall(string(role), stage, string(domain.ErrorCodeOf(err)), time.Since(start))
		span.SetAttributes(tracer.StringAttr("invoke.stage", stage))
		tracer.Finish(span, err)
	}()

	identity, err := i.identities.Identity(role)
	if err != nil {
		return "", &InvokeError{Role: role, Stage: stage, Err: err}
	}
	client, err := i.clients.Get(role)
	if err != nil {
		return "", &InvokeError{Role: role, Stage: stage, Err: err}
	}

	stage = StageStart
	handle, err := client.StartConversation(ctx, identity, ComposeMessage(message, supporting), nil)
	if err != nil {
		err = &InvokeError{Role: role, Stage: stage, Err: err}
		return "", err
	}

	stage = StagePoll
	answer, err = client.PollForAnswer(ctx, identity, handle, i.maxAttempts)
	if err != nil {
		err = &InvokeError{Role: role, Stage: stage, Err: err}
		return "", err
	}
	if answer == "" {
		err = &InvokeError{Role: role, Stage: stage, Err: domain.NewDomainError("Invoker.Call", domain.ErrEmptyAnswer, handle.ConversationID)}
		return "", err
	}

	stage = StageDone
	return answer, nil
}

// Invoke implements domain.AgentInvoker. Every failure collapses to ok=false
// once its diagnostics have been logged.
func (i *Invoker) Invoke(ctx context.Context, role domain.AgentRole, message string, supporting domain.SupportingContext) (string, bool) {
	answer, err := i.Call(ctx, role, message, supporting)
	if err != nil {
		i.logFailure(role, err)
		return "", false
	}
	return answer, true
}

func (i *Invoker) logFailure(role domain.AgentRole, err error) {
	attrs := []any{
		"role", role,
		"error", err,
		"error_code", domain.ErrorCodeOf(err),
	}
	var invErr *InvokeError
	if errors.As(err, &invErr) {
		attrs = append(attrs, "stage", invErr.Stage)
	}
	var diag domain.AgentDiagnostics
	if errors.As(err, &diag) {
		attrs = append(attrs, "status_code", diag.HTTPStatus())
		if p := diag.Payload(); p != "" {
			attrs = append(attrs, "payload", p)
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		i.logger.Info("agent invocation cancelled", attrs...)
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrCircuitOpen):
		i.logger.Error("agent invocation failed", attrs...)
	default:
		i.logger.Warn("agent invocation failed", attrs...)
	}
}
