package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/config"
)

const testKey domain.AgentIdentity = "test-key-1234"

var testHandle = domain.ConversationHandle{ConversationID: "c1", RequestID: "r1"}

// fakeAgent is an httptest-backed agent API. statuses are served in order on
// get_answer; the last entry repeats once exhausted.
type fakeAgent struct {
	t        *testing.T
	server   *httptest.Server
	statuses []string
	answer   string

	createCalls atomic.Int32
	pollCalls   atomic.Int32

	mu         sync.Mutex
	lastCreate map[string]any
	lastHeader http.Header
	lastQuery  map[string]string
}

func newFakeAgent(t *testing.T, statuses ...string) *fakeAgent {
	t.Helper()
	f := &fakeAgent{t: t, statuses: statuses, answer: "the answer"}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAgent) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastHeader = r.Header.Clone()
	f.mu.Unlock()

	switch r.URL.Path {
	case "/create_conversation":
		f.createCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			f.t.Errorf("create body not JSON: %v", err)
		}
		f.mu.Lock()
		f.lastCreate = payload
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversation_id":"c1","request_id":"r1"}`))
	case "/get_answer":
		n := int(f.pollCalls.Add(1))
		f.mu.Lock()
		f.lastQuery = map[string]string{
			"conversation_id": r.URL.Query().Get("conversation_id"),
			"request_id":      r.URL.Query().Get("request_id"),
		}
		f.mu.Unlock()
		status := f.statuses[len(f.statuses)-1]
		if n <= len(f.statuses) {
			status = f.statuses[n-1]
		}
		resp := map[string]string{"status": status}
		if status == "finished" {
			resp["answer"] = f.answer
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(baseURL string, maxAttempts int) *Client {
	c := NewClient("faq", ClientConfig{BaseURL: baseURL, MaxAttempts: maxAttempts}, nil, nil)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return c
}

func TestStartConversation_Success(t *testing.T) {
	f := newFakeAgent(t, "finished")
	c := newTestClient(f.server.URL, 3)

	handle, err := c.StartConversation(context.Background(), testKey, "¿Cómo exporto datos?", nil)
	require.NoError(t, err)
	assert.Equal(t, testHandle, handle)
	assert.True(t, handle.Valid())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "test-key-1234", f.lastHeader.Get("X-Api-Key"))
	assert.Equal(t, "application/json", f.lastHeader.Get("Content-Type"))
	assert.Equal(t, "*/*", f.lastHeader.Get("Accept"))
	assert.Equal(t, "¿Cómo exporto datos?", f.lastCreate["user_message"])
	_, hasFiles := f.lastCreate["private_user_files"]
	assert.False(t, hasFiles, "private_user_files must be omitted when empty")
}

func TestStartConversation_WithPrivateFiles(t *testing.T) {
	f := newFakeAgent(t, "finished")
	c := newTestClient(f.server.URL, 3)

	files := []domain.PrivateFile{json.RawMessage(`{"id":"file-1"}`)}
	_, err := c.StartConversation(context.Background(), testKey, "hola", files)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	got, ok := f.lastCreate["private_user_files"].([]any)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"id": "file-1"}, got[0])
}

func TestStartConversation_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 3)
	_, err := c.StartConversation(context.Background(), testKey, "hola", nil)
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.StatusUnauthorized, connErr.StatusCode)
	assert.Contains(t, connErr.Body, "bad key")
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, domain.CodeConnection, domain.ErrorCodeOf(err))
}

func TestStartConversation_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing request id", `{"conversation_id":"c1"}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(server.URL, 3)
			_, err := c.StartConversation(context.Background(), testKey, "hola", nil)
			assert.ErrorIs(t, err, domain.ErrConnection)
		})
	}
}

func TestStartConversation_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient(url, 3)
	_, err := c.StartConversation(context.Background(), testKey, "hola", nil)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Zero(t, connErr.StatusCode)
}

func TestStartConversation_InvalidInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 3)

	_, err := c.StartConversation(context.Background(), "", "hola", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.StartConversation(context.Background(), testKey, "   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPollForAnswer_FinishedFirstPoll(t *testing.T) {
	f := newFakeAgent(t, "finished")
	f.answer = "Ve a Configuración > Exportar."
	c := newTestClient(f.server.URL, 5)

	answer, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)
	require.NoError(t, err)
	assert.Equal(t, "Ve a Configuración > Exportar.", answer)
	assert.EqualValues(t, 1, f.pollCalls.Load())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, map[string]string{"conversation_id": "c1", "request_id": "r1"}, f.lastQuery)
	assert.Equal(t, "test-key-1234", f.lastHeader.Get("X-Api-Key"))
}

func TestPollForAnswer_FinishedAfterProgress(t *testing.T) {
	f := newFakeAgent(t, "in_progress", "in_progress", "finished")
	c := newTestClient(f.server.URL, 5)

	var sleeps atomic.Int32
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps.Add(1)
		return nil
	}

	answer, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.EqualValues(t, 3, f.pollCalls.Load())
	assert.EqualValues(t, 2, sleeps.Load())
}

func TestPollForAnswer_RemoteError(t *testing.T) {
	f := newFakeAgent(t, "error")
	c := newTestClient(f.server.URL, 5)

	_, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)
	var remoteErr *RemoteAgentError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, string(remoteErr.Raw), `"error"`)
	assert.ErrorIs(t, err, domain.ErrRemoteAgent)
	assert.EqualValues(t, 1, f.pollCalls.Load())
}

func TestPollForAnswer_Timeout(t *testing.T) {
	f := newFakeAgent(t, "in_progress")
	c := newTestClient(f.server.URL, 60)

	var sleeps atomic.Int32
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps.Add(1)
		return nil
	}

	_, err := c.PollForAnswer(context.Background(), testKey, testHandle, 4)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 4, timeoutErr.Attempts)
	assert.ErrorIs(t, err, domain.ErrPollTimeout)
	assert.EqualValues(t, 4, f.pollCalls.Load())
	assert.EqualValues(t, 3, sleeps.Load(), "no sleep after the final attempt")
}

func TestPollForAnswer_DefaultAttempts(t *testing.T) {
	f := newFakeAgent(t, "in_progress")
	c := newTestClient(f.server.URL, 0)

	_, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)
	assert.ErrorIs(t, err, domain.ErrPollTimeout)
	assert.EqualValues(t, DefaultMaxAttempts, f.pollCalls.Load())
}

func TestPollForAnswer_UnrecognizedStatus(t *testing.T) {
	f := newFakeAgent(t, "queued")
	c := newTestClient(f.server.URL, 5)

	_, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)
	var statusErr *UnrecognizedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "queued", statusErr.Status)
	assert.EqualValues(t, 1, f.pollCalls.Load())
}

func TestPollForAnswer_NonOKStopsImmediately(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 10)
	_, err := c.PollForAnswer(context.Background(), testKey, testHandle, 0)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, http.StatusInternalServerError, connErr.StatusCode)
	assert.EqualValues(t, 1, polls.Load())
}

func TestPollForAnswer_ContextCancelledDuringWait(t *testing.T) {
	f := newFakeAgent(t, "in_progress")
	c := newTestClient(f.server.URL, 10)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.PollForAnswer(ctx, testKey, testHandle, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, f.pollCalls.Load())
	assert.Equal(t, domain.CodeCanceled, domain.ErrorCodeOf(err))
}

func TestPollForAnswer_InvalidInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 3)

	_, err := c.PollForAnswer(context.Background(), testKey, domain.ConversationHandle{ConversationID: "c1"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.PollForAnswer(context.Background(), "", testHandle, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_LimiterCancelled(t *testing.T) {
	f := newFakeAgent(t, "finished")
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow()) // drain the only token

	c := NewClient("faq", ClientConfig{BaseURL: f.server.URL, Limiter: limiter}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.StartConversation(ctx, testKey, "hola", nil)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Zero(t, f.createCalls.Load())
}

func TestClientConfigFrom(t *testing.T) {
	cfg := config.Defaults()
	cfg.HTTP.RequestsPerSecond = 5
	cfg.HTTP.Burst = 2

	a := ClientConfigFrom(cfg, nil)
	b := ClientConfigFrom(cfg, nil)
	assert.Equal(t, cfg.Agents.BaseURL, a.BaseURL)
	assert.Equal(t, 60, a.MaxAttempts)
	assert.Equal(t, time.Second, a.Interval)
	require.NotNil(t, a.Limiter)
	assert.NotSame(t, a.Limiter, b.Limiter)

	cfg.HTTP.RequestsPerSecond = 0
	assert.Nil(t, ClientConfigFrom(cfg, nil).Limiter)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(sleepCtx(ctx, time.Hour), context.Canceled))
}

func TestConnectionError_Message(t *testing.T) {
	err := &ConnectionError{Op: "op", StatusCode: 502, Body: string(make([]byte, 2000))}
	assert.Contains(t, err.Error(), "API error 502")
	assert.Contains(t, err.Error(), "(truncated)")

	err = &ConnectionError{Op: "op", Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "op: dial tcp: refused", err.Error())
}
