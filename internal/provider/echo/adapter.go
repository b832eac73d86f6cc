// Package echo provides a deterministic in-memory provider that streams a
// small self-contained HTML document for any prompt. It implements the
// domain.Provider interface without external API calls, so the full pipeline
// can run in development and tests with no key configured.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

const (
	providerName = "echo"
	chunkDelay   = 10 * time.Millisecond
	chunkSize    = 24 // characters per streamed delta
)

// Provider implements the domain.Provider interface for offline use.
type Provider struct {
	name            string
	supportedModels map[string]bool
}

// NewProvider creates a new echo provider.
func NewProvider() *Provider {
	return &Provider{
		name: providerName,
		supportedModels: map[string]bool{
			"echo/html-a": true,
			"echo/html-b": true,
		},
	}
}

// Stream returns the canned document in fixed-size deltas with a short
// inter-chunk delay, mimicking token arrival.
func (p *Provider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if !p.supportedModels[req.Model] {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo document")

	content := renderDocument(req)
	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		for start := 0; start < len(content); start += chunkSize {
			end := min(start+chunkSize, len(content))

			select {
			case chunks <- domain.StreamChunk{Content: content[start:end]}:
			case <-ctx.Done():
				return
			}

			select {
			case <-time.After(chunkDelay):
			case <-ctx.Done():
				return
			}
		}

		select {
		case chunks <- domain.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// OpenRaw returns the canned document pre-encoded as an SSE byte stream, so
// the relay path is exercisable offline too.
func (p *Provider) OpenRaw(_ context.Context, req *domain.GenerationRequest) (io.ReadCloser, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if !p.supportedModels[req.Model] {
		return nil, &domain.StreamError{
			Reason:  domain.ReasonInvalidRequest,
			Message: fmt.Sprintf("model %s is not supported by echo provider", req.Model),
		}
	}

	content := renderDocument(req)
	var sb strings.Builder
	for start := 0; start < len(content); start += chunkSize {
		end := min(start+chunkSize, len(content))
		payload, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": content[start:end]}},
			},
		})
		sb.WriteString("data: ")
		sb.Write(payload)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")

	return io.NopCloser(strings.NewReader(sb.String())), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return p.supportedModels[model]
}

// SupportedModels lists model identifiers this provider accepts.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(p.supportedModels))
	for model := range p.supportedModels {
		models = append(models, model)
	}
	return models
}

// renderDocument builds a minimal page that displays the user prompt.
func renderDocument(req *domain.GenerationRequest) string {
	prompt := ""
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			prompt = msg.Content
		}
	}

	return "<!DOCTYPE html>\n<html>\n<head><title>Echo</title></head>\n" +
		"<body><h1>" + html.EscapeString(req.Model) + "</h1>" +
		"<p>" + html.EscapeString(prompt) + "</p></body>\n</html>"
}
