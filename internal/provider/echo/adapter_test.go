package echo

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/extract"
)

func echoRequest(model string) *domain.GenerationRequest {
	return &domain.GenerationRequest{
		Model: model,
		Messages: []domain.Message{
			{Role: "system", Content: "system framing"},
			{Role: "user", Content: "a <b>bold</b> page"},
		},
	}
}

func TestStream(t *testing.T) {
	t.Run("reassembles into an extractable document", func(t *testing.T) {
		p := NewProvider()

		chunks, err := p.Stream(context.Background(), echoRequest("echo/html-a"))
		require.NoError(t, err)

		var sb strings.Builder
		sawDone := false
		for chunk := range chunks {
			require.NoError(t, chunk.Err)
			sb.WriteString(chunk.Content)
			if chunk.Done {
				sawDone = true
			}
		}
		require.True(t, sawDone)

		doc, ok := extract.Document(sb.String())
		require.True(t, ok)
		require.Contains(t, doc, "echo/html-a")
		// User input is escaped, never embedded raw.
		require.Contains(t, doc, "&lt;b&gt;bold&lt;/b&gt;")
		require.NotContains(t, doc, "<b>bold</b>")
	})

	t.Run("rejects unsupported model", func(t *testing.T) {
		p := NewProvider()
		_, err := p.Stream(context.Background(), echoRequest("gpt-4"))
		require.Error(t, err)
	})

	t.Run("cancellation stops the stream", func(t *testing.T) {
		p := NewProvider()
		ctx, cancel := context.WithCancel(context.Background())

		chunks, err := p.Stream(ctx, echoRequest("echo/html-b"))
		require.NoError(t, err)

		<-chunks // at least one delta arrives
		cancel()

		for range chunks {
			// drain until the producer notices cancellation and closes
		}
	})
}

func TestOpenRaw(t *testing.T) {
	t.Run("emits decodable event stream", func(t *testing.T) {
		p := NewProvider()

		body, err := p.OpenRaw(context.Background(), echoRequest("echo/html-a"))
		require.NoError(t, err)
		defer body.Close()

		raw, err := io.ReadAll(body)
		require.NoError(t, err)

		var sb strings.Builder
		sawDone := false
		scanner := bufio.NewScanner(strings.NewReader(string(raw)))
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				sawDone = true
				break
			}
			sb.WriteString(gjson.Get(data, "choices.0.delta.content").String())
		}

		require.True(t, sawDone)
		_, ok := extract.Document(sb.String())
		require.True(t, ok)
	})

	t.Run("unsupported model is an invalid request", func(t *testing.T) {
		p := NewProvider()

		_, err := p.OpenRaw(context.Background(), echoRequest("gpt-4"))

		var streamErr *domain.StreamError
		require.ErrorAs(t, err, &streamErr)
		require.Equal(t, domain.ReasonInvalidRequest, streamErr.Reason)
	})
}

func TestModelSurface(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	require.Equal(t, "echo", p.Name())
	require.True(t, p.IsModelSupported(ctx, "echo/html-a"))
	require.True(t, p.IsModelSupported(ctx, "echo/html-b"))
	require.False(t, p.IsModelSupported(ctx, "gpt-4"))
	require.ElementsMatch(t, []string{"echo/html-a", "echo/html-b"}, p.SupportedModels(ctx))
}
