// Package llm talks to OpenAI-compatible chat-completion endpoints.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
	"voicekey/internal/infra/tracer"
)

// Client implements domain.ChatCompleter over HTTP. Provider settings come
// with every call, so one Client serves all providers.
type Client struct {
	http    *http.Client
	breaker *Breaker
	logger  *slog.Logger
}

var _ domain.ChatCompleter = (*Client)(nil)

// NewClient creates a Client with a pooled HTTP client and a per-provider
// circuit breaker.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	logger = logger.With("component", "llm")
	return &Client{
		http:    NewHTTPClient(cfg),
		breaker: NewBreaker(cfg.CircuitBreaker, logger),
		logger:  logger,
	}
}

// NewClientWithHTTP is NewClient with a caller-supplied *http.Client.
func NewClientWithHTTP(httpClient *http.Client, breaker *Breaker, logger *slog.Logger) *Client {
	return &Client{http: httpClient, breaker: breaker, logger: logger}
}

// reservedFields cannot be overridden by extra parameters.
var reservedFields = map[string]bool{"model": true, "messages": true, "stream": true}

// buildRequestBody encodes req as a chat.completions body. Extra parameters
// are merged into the top-level object.
func buildRequestBody(req domain.ChatRequest) ([]byte, error) {
	msgs := req.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}

	body := make(map[string]any, 4+len(req.Extra))
	for k, v := range req.Extra {
		if k == "" || reservedFields[k] {
			continue
		}
		body[k] = v.Any()
	}
	body["model"] = req.Model
	body["messages"] = msgs
	body["stream"] = req.Stream
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return json.Marshal(body)
}

// endpoint returns the chat.completions URL for cfg.
func endpoint(cfg domain.ProviderConfig) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = cfg.Provider.DefaultBaseURL()
	}
	if base == "" {
		return "", domain.NewDomainError("llm.endpoint", domain.ErrInvalidInput, "no base URL for "+cfg.Provider.DisplayName())
	}
	return strings.TrimRight(base, "/") + "/chat/completions", nil
}

// Complete implements domain.ChatCompleter. A streaming request is decoded
// with DecodeStream; a non-streaming one reads choices[0].message.content.
// Both return domain.NoContent when the provider produced no text.
func (c *Client) Complete(ctx context.Context, cfg domain.ProviderConfig, req domain.ChatRequest) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("llm.provider", cfg.Provider.String()),
		tracer.StringAttr("llm.model", req.Model),
		tracer.BoolAttr("llm.stream", req.Stream),
	)

	url, err := endpoint(cfg)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	body, err := buildRequestBody(req)
	if err != nil {
		err = fmt.Errorf("marshal request: %w", err)
		tracer.RecordError(span, err)
		return "", err
	}
	headers := map[string]string{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	text, err := c.breaker.Execute(cfg.Provider.String(), func() (string, error) {
		if req.Stream {
			return c.stream(ctx, url, body, headers)
		}
		return c.complete(ctx, url, body, headers)
	})
	if err != nil {
		tracer.RecordError(span, err)
		c.logger.Warn("chat completion failed", "provider", cfg.Provider.String(), "model", req.Model, "error", err)
		return "", err
	}

	span.SetAttributes(tracer.IntAttr("llm.response_chars", len(text)))
	tracer.SetOK(span)
	c.logger.Debug("chat completion done", "provider", cfg.Provider.String(), "model", req.Model, "stream", req.Stream, "len", len(text))
	return text, nil
}

func (c *Client) complete(ctx context.Context, url string, body []byte, headers map[string]string) (string, error) {
	respBody, err := doJSONRequest(ctx, c.http, url, body, headers)
	if err != nil {
		return "", err
	}
	text, err := messageText(respBody)
	if err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrProviderError, err)
	}
	if text == "" {
		return domain.NoContent, nil
	}
	return text, nil
}

func (c *Client) stream(ctx context.Context, url string, body []byte, headers map[string]string) (string, error) {
	resp, err := doStreamRequest(ctx, c.http, url, body, headers)
	if err != nil {
		return "", err
	}
	text := DecodeStream(resp)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}
