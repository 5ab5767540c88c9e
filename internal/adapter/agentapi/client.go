package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/config"
	"agent-orchestrator/internal/infra/logger"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/infra/tracer"
)

// Compile-time interface assertion.
var _ domain.AgentClient = (*Client)(nil)

// maxResponseBody is the maximum response body size we read from the agent API.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// Polling defaults used when ClientConfig leaves them unset.
const (
	DefaultMaxAttempts  = 60
	DefaultPollInterval = time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL     string
	MaxAttempts int
	// Interval is the wait between in_progress polls. Zero polls back to back.
	Interval   time.Duration
	HTTPClient *http.Client
	// Limiter, when set, gates every outbound request.
	Limiter *rate.Limiter
}

// ClientConfigFrom builds a ClientConfig from application config. Each call
// returns a fresh limiter so roles do not share a budget.
func ClientConfigFrom(cfg *config.Config, httpClient *http.Client) ClientConfig {
	cc := ClientConfig{
		BaseURL:     cfg.Agents.BaseURL,
		MaxAttempts: cfg.Polling.MaxAttempts,
		Interval:    cfg.Polling.Interval,
		HTTPClient:  httpClient,
	}
	if cfg.HTTP.RequestsPerSecond > 0 {
		cc.Limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RequestsPerSecond), cfg.HTTP.Burst)
	}
	return cc
}

// Client speaks the create_conversation / get_answer protocol. One Client is
// built per agent role so logs, metrics and breakers are labelled by role.
type Client struct {
	name        string
	baseURL     string
	maxAttempts int
	interval    time.Duration
	client      *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     metrics.Recorder
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client labelled name.
func NewClient(name string, cfg ClientConfig, log *slog.Logger, rec metrics.Recorder) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	interval := cfg.Interval
	if interval < 0 {
		interval = DefaultPollInterval
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(config.HTTPConfig{})
	}

	return &Client{
		name:        name,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxAttempts: maxAttempts,
		interval:    interval,
		client:      httpClient,
		limiter:     cfg.Limiter,
		logger:      logger.OrDiscard(log).With("agent", name),
		metrics:     metrics.OrNop(rec),
		sleep:       sleepCtx,
	}
}

// Name returns the role label this client was built for.
func (c *Client) Name() string { return c.name }

type createConversationRequest struct {
	UserMessage      string               `json:"user_message"`
	PrivateUserFiles []domain.PrivateFile `json:"private_user_files,omitempty"`
}

// StartConversation issues POST {base}/create_conversation and returns the
// handle needed to poll for the answer.
func (c *Client) StartConversation(ctx context.Context, identity domain.AgentIdentity, message string, files []domain.PrivateFile) (domain.ConversationHandle, error) {
	const op = "agentapi.StartConversation"
	if identity.IsZero() {
		return domain.ConversationHandle{}, domain.NewDomainError(op, domain.ErrInvalidInput, "empty agent identity")
	}
	if strings.TrimSpace(message) == "" {
		return domain.ConversationHandle{}, domain.NewDomainError(op, domain.ErrInvalidInput, "empty message")
	}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanAgentStart)
	span.SetAttributes(tracer.StringAttr("agent.role", c.name), tracer.IntAttr("message.length", len(message)))
	var err error
	defer func() { tracer.Finish(span, err) }()

	body, err := json.Marshal(createConversationRequest{UserMessage: message, PrivateUserFiles: files})
	if err != nil {
		err = fmt.Errorf("%s: marshal request: %w", op, err)
		return domain.ConversationHandle{}, err
	}

	status, respBody, err := c.do(ctx, op, http.MethodPost, c.baseURL+"/create_conversation", body, identity)
	if err != nil {
		return domain.ConversationHandle{}, err
	}

	var handle domain.ConversationHandle
	if jsonErr := json.Unmarshal(respBody, &handle); jsonErr != nil {
		err = &ConnectionError{Op: op, StatusCode: status, Body: string(respBody), Err: fmt.Errorf("decode response: %w", jsonErr)}
		return domain.ConversationHandle{}, err
	}
	if !handle.Valid() {
		err = &ConnectionError{Op: op, StatusCode: status, Body: string(respBody), Err: errors.New("response missing conversation_id or request_id")}
		return domain.ConversationHandle{}, err
	}

	c.logger.Debug("conversation created", "conversation_id", handle.ConversationID, "request_id", handle.RequestID)
	return handle, nil
}

// PollForAnswer polls GET {base}/get_answer until the agent finishes,
// reports an error, or maxAttempts polls came back in_progress.
// maxAttempts <= 0 uses the client default.
func (c *Client) PollForAnswer(ctx context.Context, identity domain.AgentIdentity, handle domain.ConversationHandle, maxAttempts int) (string, error) {
	const op = "agentapi.PollForAnswer"
	if identity.IsZero() {
		return "", domain.NewDomainError(op, domain.ErrInvalidInput, "empty agent identity")
	}
	if !handle.Valid() {
		return "", domain.NewDomainError(op, domain.ErrInvalidInput, "incomplete conversation handle")
	}
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanAgentPoll)
	span.SetAttributes(
		tracer.StringAttr("agent.role", c.name),
		tracer.StringAttr("conversation.id", handle.ConversationID),
		tracer.IntAttr("poll.max_attempts", maxAttempts),
	)
	var err error
	attempt := 0
	defer func() {
		span.SetAttributes(tracer.IntAttr("poll.attempts", attempt))
		tracer.Finish(span, err)
	}()

	endpoint := c.baseURL + "/get_answer?" + url.Values{
		"conversation_id": {handle.ConversationID},
		"request_id":      {handle.RequestID},
	}.Encode()

	for attempt = 1; attempt <= maxAttempts; attempt++ {
		var resp domain.AgentResponse
		resp, err = c.getAnswer(ctx, op, endpoint, identity)
		if err != nil {
			return "", err
		}
		c.metrics.ObservePoll(c.name, string(resp.Status))

		switch resp.Status {
		case domain.StatusFinished:
			c.logger.Debug("agent finished", "conversation_id", handle.ConversationID, "attempts", attempt)
			return resp.Answer, nil
		case domain.StatusError:
			err = &RemoteAgentError{ConversationID: handle.ConversationID, Raw: resp.Raw}
			return "", err
		case domain.StatusInProgress:
			if attempt == maxAttempts {
				continue
			}
			if sleepErr := c.sleep(ctx, c.interval); sleepErr != nil {
				err = fmt.Errorf("%s: polling cancelled after %d attempts: %w", op, attempt, sleepErr)
				return "", err
			}
		default:
			err = &UnrecognizedStatusError{ConversationID: handle.ConversationID, Status: string(resp.Status), Raw: resp.Raw}
			return "", err
		}
	}

	attempt = maxAttempts
	err = &TimeoutError{ConversationID: handle.ConversationID, Attempts: maxAttempts}
	return "", err
}

func (c *Client) getAnswer(ctx context.Context, op, endpoint string, identity domain.AgentIdentity) (domain.AgentResponse, error) {
	status, body, err := c.do(ctx, op, http.MethodGet, endpoint, nil, identity)
	if err != nil {
		return domain.AgentResponse{}, err
	}

	var resp domain.AgentResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return domain.AgentResponse{}, &ConnectionError{Op: op, StatusCode: status, Body: string(body), Err: fmt.Errorf("decode response: %w", jsonErr)}
	}
	resp.Raw = json.RawMessage(body)
	return resp, nil
}

// do performs one request and returns the status and body. Transport failures
// and any status other than 200 come back as *ConnectionError.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, identity domain.AgentIdentity) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimit, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, &ConnectionError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Set("X-Api-Key", string(identity))
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, &ConnectionError{Op: op, Err: fmt.Errorf("http request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return httpResp.StatusCode, nil, &ConnectionError{Op: op, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return httpResp.StatusCode, respBody, &ConnectionError{Op: op, StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}
	return httpResp.StatusCode, respBody, nil
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
