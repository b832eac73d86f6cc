// Package openai provides an adapter for OpenAI-compatible completion APIs
// using the official SDK. It implements the domain.Provider interface and
// converts between domain types and SDK types; a raw HTTP client sits
// alongside the SDK for verbatim byte relay and reasoning-delta access.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

// reasoningField is the vendor extension carrying chain-of-thought deltas.
const reasoningField = "reasoning_content"

// Provider implements the domain.Provider interface for OpenAI-compatible APIs.
type Provider struct {
	client openai.Client
	raw    *Client
	name   string
}

// NewProvider creates a new completion provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("completion API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		raw:    NewClient(config),
		name:   "openai",
	}, nil
}

// Stream sends a completion request and returns a stream of chunks.
func (p *Provider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("opening completion stream")

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.toSDKParams(req))

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)
		defer logger.Debug("completion stream closed")

		tokens := 0
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.CompletionTokens > 0 {
				tokens = int(chunk.Usage.CompletionTokens)
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			out := domain.StreamChunk{
				Content:   choice.Delta.Content,
				Reasoning: deltaReasoning(choice.Delta),
				Done:      choice.FinishReason != "",
				Tokens:    tokens,
			}

			select {
			case chunks <- out:
			case <-ctx.Done():
				return
			}

			if out.Done {
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case chunks <- domain.StreamChunk{Err: fmt.Errorf("completion stream error: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case chunks <- domain.StreamChunk{Done: true, Tokens: tokens}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// OpenRaw opens the upstream event stream for byte-level relay.
func (p *Provider) OpenRaw(ctx context.Context, req *domain.GenerationRequest) (io.ReadCloser, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	return p.raw.Open(ctx, req)
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return supportedModelSet[model]
}

// SupportedModels lists model identifiers this provider accepts.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return SupportedModels()
}

// deltaReasoning pulls the reasoning delta out of the SDK's untyped
// extension fields.
func deltaReasoning(delta openai.ChatCompletionChunkChoiceDelta) string {
	field, ok := delta.JSON.ExtraFields[reasoningField]
	if !ok {
		return ""
	}
	return gjson.Parse(field.Raw()).String()
}

// toSDKParams converts a domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(req *domain.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages[i] = openai.AssistantMessage(msg.Content)
		case "system":
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	return params
}
