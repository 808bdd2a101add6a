package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
)

type capturedRequest struct {
	path   string
	auth   string
	accept string
	body   map[string]any
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.accept = r.Header.Get("Accept")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(srv *httptest.Server, cb config.CircuitBreakerConfig) *Client {
	return NewClientWithHTTP(srv.Client(), NewBreaker(cb, slog.Default()), slog.Default())
}

func providerFor(srv *httptest.Server) domain.ProviderConfig {
	return domain.ProviderConfig{
		Provider: domain.CustomProvider("test"),
		BaseURL:  srv.URL + "/v1/",
		APIKey:   "sk-test",
		Model:    "gpt-4.1-mini",
	}
}

func TestCompleteNonStreaming(t *testing.T) {
	srv, got := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Cleaned text."}}]}`)
	})
	client := newTestClient(srv, config.CircuitBreakerConfig{})

	req := domain.ChatRequest{
		Model: "gpt-4.1-mini",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "clean up"},
			{Role: domain.RoleUser, Content: "um hello"},
		},
		Temperature: domain.Temperature(0.2),
	}
	text, err := client.Complete(context.Background(), providerFor(srv), req)
	require.NoError(t, err)
	assert.Equal(t, "Cleaned text.", text)

	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.auth)
	assert.Equal(t, "gpt-4.1-mini", got.body["model"])
	assert.Equal(t, false, got.body["stream"])
	assert.InDelta(t, 0.2, got.body["temperature"], 1e-9)
	msgs, ok := got.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"role": "user", "content": "um hello"}, msgs[1])
}

func TestCompleteStreaming(t *testing.T) {
	srv, got := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	client := newTestClient(srv, config.CircuitBreakerConfig{})

	cfg := providerFor(srv)
	cfg.APIKey = ""
	text, err := client.Complete(context.Background(), cfg, domain.ChatRequest{Model: "llama3", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "text/event-stream", got.accept)
	assert.Empty(t, got.auth, "no key, no Authorization header")
	assert.Equal(t, true, got.body["stream"])
	_, hasTemp := got.body["temperature"]
	assert.False(t, hasTemp)
}

func TestCompleteMergesExtraParams(t *testing.T) {
	srv, got := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})
	client := newTestClient(srv, config.CircuitBreakerConfig{})

	req := domain.ChatRequest{
		Model: "o4-mini",
		Extra: map[string]domain.ParamValue{
			"reasoning_effort": domain.StringParam("low"),
			"enable_thinking":  domain.BoolParam(false),
			"model":            domain.StringParam("hijack"),
		},
	}
	_, err := client.Complete(context.Background(), providerFor(srv), req)
	require.NoError(t, err)
	assert.Equal(t, "low", got.body["reasoning_effort"])
	assert.Equal(t, false, got.body["enable_thinking"])
	assert.Equal(t, "o4-mini", got.body["model"], "extra params cannot override core fields")
}

func TestCompleteNoContent(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":""}}]}`)
	})
	client := newTestClient(srv, config.CircuitBreakerConfig{})
	text, err := client.Complete(context.Background(), providerFor(srv), domain.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, domain.NoContent, text)
}

func TestCompleteHTTPErrors(t *testing.T) {
	for _, stream := range []bool{false, true} {
		t.Run(fmt.Sprintf("stream=%v", stream), func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			})
			client := newTestClient(srv, config.CircuitBreakerConfig{})

			_, err := client.Complete(context.Background(), providerFor(srv), domain.ChatRequest{Model: "m", Stream: stream})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrRateLimit)
			var he *domain.HTTPStatusError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, "HTTP 429: slow down", he.Error())
		})
	}
}

func TestCompleteCircuitOpens(t *testing.T) {
	var hits atomic.Int32
	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	client := newTestClient(srv, config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2, Timeout: time.Minute})

	for range 2 {
		_, err := client.Complete(context.Background(), providerFor(srv), domain.ChatRequest{Model: "m"})
		assert.ErrorIs(t, err, domain.ErrProviderError)
	}
	_, err := client.Complete(context.Background(), providerFor(srv), domain.ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCompleteCancelledStream(t *testing.T) {
	release := make(chan struct{})
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)
	client := newTestClient(srv, config.CircuitBreakerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, providerFor(srv), domain.ChatRequest{Model: "m", Stream: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.ProviderConfig
		want string
	}{
		{"openai default", domain.ProviderConfig{Provider: domain.ProviderOpenAI}, "https://api.openai.com/v1/chat/completions"},
		{"groq default", domain.ProviderConfig{Provider: domain.ProviderGroq}, "https://api.groq.com/openai/v1/chat/completions"},
		{"custom trailing slash", domain.ProviderConfig{Provider: domain.CustomProvider("lm"), BaseURL: "http://localhost:1234/v1/"}, "http://localhost:1234/v1/chat/completions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := endpoint(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := endpoint(domain.ProviderConfig{Provider: domain.CustomProvider("lm")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
