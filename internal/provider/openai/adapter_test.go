package openai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/provider/openai"
)

func TestNewProvider_Success(t *testing.T) {
	config := openai.Config{
		APIKey:     "test-api-key",
		BaseURL:    "https://api.novita.ai/openai/v1",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.NoError(t, err)
	require.NotNil(t, provider)
	require.Equal(t, "openai", provider.Name())
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	config := openai.Config{
		BaseURL: "https://api.novita.ai/openai/v1",
	}

	provider, err := openai.NewProvider(config)

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "API key is required")
}

func TestProvider_IsModelSupported(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		model     string
		supported bool
	}{
		{
			name:      "DeepSeek V3 is supported",
			model:     "deepseek/deepseek-v3-turbo",
			supported: true,
		},
		{
			name:      "Qwen3 Coder is supported",
			model:     "qwen/qwen3-coder-480b-a35b-instruct",
			supported: true,
		},
		{
			name:      "GLM 4.5 is supported",
			model:     "zai-org/glm-4.5",
			supported: true,
		},
		{
			name:      "Unknown model is not supported",
			model:     "unknown-model",
			supported: false,
		},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.IsModelSupported(ctx, tt.model)
			require.Equal(t, tt.supported, result)
		})
	}
}

func TestProvider_SupportedModels(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	models := provider.SupportedModels(context.Background())

	require.Equal(t, openai.SupportedModels(), models)
	require.Contains(t, models, "deepseek/deepseek-v3-turbo")
}

func TestProvider_Stream_NilRequest(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	chunks, err := provider.Stream(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, chunks)
	require.Contains(t, err.Error(), "request cannot be nil")
}

func TestProvider_OpenRaw_NilRequest(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{APIKey: "test-key"})
	require.NoError(t, err)

	body, err := provider.OpenRaw(context.Background(), nil)

	require.Error(t, err)
	require.Nil(t, body)
	require.Contains(t, err.Error(), "request cannot be nil")
}
