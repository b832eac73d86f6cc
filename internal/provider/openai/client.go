package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
)

const (
	ssePrefix   = "data: "
	sseDone     = "[DONE]"
	maxSSELine  = 1024 * 1024
	contentPath = "choices.0.delta.content"
	reasonPath  = "choices.0.delta.reasoning_content"
	finishPath  = "choices.0.finish_reason"
	tokensPath  = "usage.completion_tokens"
)

// Client is a thin HTTP client for the OpenAI-compatible streaming endpoint.
// It exists alongside the SDK adapter because the relay needs the raw SSE
// body verbatim, and because some vendors carry reasoning deltas in fields
// the SDK's typed chunk does not surface.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new streaming HTTP client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
}

// Open opens the upstream event stream and returns its body unread, for
// byte-level relay. Closing the returned body (or cancelling ctx) tears
// down the upstream connection.
func (c *Client) Open(ctx context.Context, req *domain.GenerationRequest) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, &domain.StreamError{
			Reason:  domain.ReasonInvalidRequest,
			Message: "completion API key is not configured",
		}
	}

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.StreamError{
			Reason:  domain.ReasonUpstreamUnavailable,
			Message: err.Error(),
		}
	}

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, string(payload))
	}

	return resp.Body, nil
}

// Stream opens the upstream event stream and decodes it into domain chunks,
// preserving arrival order. The channel is closed after the terminal chunk.
func (c *Client) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	body, err := c.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan domain.StreamChunk)
	go c.decodeStream(ctx, body, chunks)

	return chunks, nil
}

// decodeStream reads SSE lines and emits one chunk per delta event.
func (c *Client) decodeStream(ctx context.Context, body io.ReadCloser, chunks chan<- domain.StreamChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	tokens := 0
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}

		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			c.emit(ctx, chunks, domain.StreamChunk{Done: true, Tokens: tokens})
			return
		}

		chunk := domain.StreamChunk{
			Content:   gjson.Get(data, contentPath).String(),
			Reasoning: gjson.Get(data, reasonPath).String(),
		}
		if t := gjson.Get(data, tokensPath); t.Exists() {
			tokens = int(t.Int())
		}
		if finish := gjson.Get(data, finishPath); finish.Exists() && finish.String() != "" {
			chunk.Done = true
			chunk.Tokens = tokens
		}

		if !c.emit(ctx, chunks, chunk) {
			return
		}
		if chunk.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		c.emit(ctx, chunks, domain.StreamChunk{Err: fmt.Errorf("stream read failed: %w", err)})
		return
	}

	// Upstream closed without a finish marker; still a normal end of stream.
	c.emit(ctx, chunks, domain.StreamChunk{Done: true, Tokens: tokens})
}

func (c *Client) emit(ctx context.Context, chunks chan<- domain.StreamChunk, chunk domain.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifyStatus maps an upstream HTTP failure onto the relay error taxonomy.
func classifyStatus(status int, payload string) *domain.StreamError {
	msg := strings.TrimSpace(payload)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired || status == http.StatusForbidden:
		return &domain.StreamError{Reason: domain.ReasonQuotaExceeded, Message: msg}
	case status >= 400 && status < 500:
		return &domain.StreamError{Reason: domain.ReasonInvalidRequest, Message: msg}
	default:
		return &domain.StreamError{Reason: domain.ReasonUpstreamUnavailable, Message: msg}
	}
}
