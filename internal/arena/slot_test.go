package arena

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/provider/registry"
)

const testModel = "mock/html"

func testOptions() Options {
	return Options{FlushInterval: 2 * time.Millisecond, Temperature: 0.7, MaxTokens: 1000}
}

func newTestController(t *testing.T, provider *mockProvider, store *mockStore) *Controller {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(context.Background(), provider))
	return NewController(domain.SlotA, testModel, reg, store, testEvents(), testOptions())
}

func TestControllerStart(t *testing.T) {
	t.Run("streams to completion and extracts document", func(t *testing.T) {
		doc := "<!DOCTYPE html>\n<html><body><h1>hi</h1></body></html>"
		provider := newMockProvider(testModel)
		provider.script(emitAll(
			domain.StreamChunk{Content: doc[:20], Reasoning: "planning"},
			domain.StreamChunk{Content: doc[20:]},
			domain.StreamChunk{Done: true, Tokens: 42},
		))
		store := newMockStore()
		store.seedRun("run-1", "a greeting page")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		c.Wait()

		st := c.State()
		require.Equal(t, domain.StatusCompleted, st.Status)
		require.Equal(t, doc, st.Content)
		require.Equal(t, "planning", st.Reasoning)
		require.True(t, st.HasDocument)
		require.Equal(t, doc, st.Document)
		require.Equal(t, 42, st.Tokens)
		require.False(t, st.FinishedAt.IsZero())
		require.Empty(t, st.ErrorCode)

		// Persistence is fire-and-forget after completion.
		require.Eventually(t, func() bool {
			return len(store.savedArtifacts()) == 1
		}, time.Second, 5*time.Millisecond)
		artifact := store.savedArtifacts()[0]
		require.Equal(t, "run-1", artifact.RunID)
		require.Equal(t, domain.SlotA, artifact.Slot)
		require.Equal(t, doc, artifact.Document)
	})

	t.Run("estimates tokens from content length when unreported", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitAll(
			domain.StreamChunk{Content: "abcdefgh"}, // 8 chars
			domain.StreamChunk{Done: true},
		))
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		c.Wait()

		require.Equal(t, 2, c.State().Tokens)
	})

	t.Run("state resets wholesale between rounds", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(
			emitAll(domain.StreamChunk{Content: "OLD CONTENT"}, domain.StreamChunk{Done: true}),
			emitAll(domain.StreamChunk{Content: "new"}, domain.StreamChunk{Done: true}),
		)
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		c.Wait()
		require.Equal(t, "OLD CONTENT", c.State().Content)

		c.Start(context.Background(), "run-1")
		c.Wait()

		st := c.State()
		require.Equal(t, "new", st.Content)
		require.NotContains(t, st.Content, "OLD")
	})

	t.Run("restart supersedes a blocked round", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(
			emitThenBlock(domain.StreamChunk{Content: "stuck"}),
			emitAll(domain.StreamChunk{Content: "fresh"}, domain.StreamChunk{Done: true}),
		)
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		require.Eventually(t, func() bool {
			return c.State().Content == "stuck"
		}, time.Second, time.Millisecond)

		c.Start(context.Background(), "run-1")
		c.Wait()

		st := c.State()
		require.Equal(t, domain.StatusCompleted, st.Status)
		require.Equal(t, "fresh", st.Content)
		require.Equal(t, 2, provider.streamCalls())
	})
}

func TestControllerStop(t *testing.T) {
	t.Run("stop mid-stream is a successful partial completion", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitThenBlock(
			domain.StreamChunk{Content: "<!DOCTYPE html><html><body>par"},
		))
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		require.Eventually(t, func() bool {
			return c.State().Content != ""
		}, time.Second, time.Millisecond)

		c.Stop()

		st := c.State()
		require.Equal(t, domain.StatusCompleted, st.Status)
		require.Equal(t, "<!DOCTYPE html><html><body>par", st.Content)
		require.Empty(t, st.ErrorCode)
		// The partial text has no closing marker, so no document.
		require.False(t, st.HasDocument)
		require.Empty(t, st.Document)
		require.Empty(t, store.savedArtifacts())

		c.Wait()
	})

	t.Run("stop drains unflushed text", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitThenBlock(domain.StreamChunk{Content: "buffered"}))
		store := newMockStore()
		store.seedRun("run-1", "p")

		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(context.Background(), provider))
		// A flush interval far beyond the test duration: only the final
		// drain can surface the text.
		c := NewController(domain.SlotA, testModel, reg, store, testEvents(),
			Options{FlushInterval: time.Hour})

		c.Start(context.Background(), "run-1")
		require.Eventually(t, func() bool {
			return provider.streamCalls() == 1
		}, time.Second, time.Millisecond)
		time.Sleep(10 * time.Millisecond) // let the consumer buffer the chunk

		c.Stop()

		require.Equal(t, "buffered", c.State().Content)
	})

	t.Run("stop keeps a chunk delivered during teardown", func(t *testing.T) {
		// The provider hands over one last chunk after cancellation, before
		// closing the stream; the final drain must still include it.
		provider := newMockProvider(testModel)
		provider.script(func(ctx context.Context) <-chan domain.StreamChunk {
			out := make(chan domain.StreamChunk)
			go func() {
				defer close(out)
				out <- domain.StreamChunk{Content: "kept "}
				<-ctx.Done()
				out <- domain.StreamChunk{Content: "tail"}
			}()
			return out
		})
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		require.Eventually(t, func() bool {
			return c.State().Content != ""
		}, time.Second, time.Millisecond)

		c.Stop()

		st := c.State()
		require.Equal(t, domain.StatusCompleted, st.Status)
		require.Equal(t, "kept tail", st.Content)
	})

	t.Run("stop when idle is a no-op", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitAll(domain.StreamChunk{Done: true}))
		c := newTestController(t, provider, newMockStore())

		c.Stop()

		require.Equal(t, domain.StatusIdle, c.State().Status)
	})
}

func TestControllerErrors(t *testing.T) {
	t.Run("stream error classifies and appends marker", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitAll(
			domain.StreamChunk{Content: "partial"},
			domain.StreamChunk{Err: &domain.StreamError{
				Reason:  domain.ReasonQuotaExceeded,
				Message: "quota exhausted",
			}},
		))
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		c.Start(context.Background(), "run-1")
		c.Wait()

		st := c.State()
		require.Equal(t, domain.StatusErrored, st.Status)
		require.Equal(t, string(domain.ReasonQuotaExceeded), st.ErrorCode)
		require.Contains(t, st.Content, "partial")
		require.Contains(t, st.Content, "\n\nError: ")
	})

	t.Run("unknown model fails as invalid request", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitAll(domain.StreamChunk{Done: true}))
		store := newMockStore()
		store.seedRun("run-1", "p")
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(context.Background(), provider))
		c := NewController(domain.SlotA, "nobody/serves-this", reg, store, testEvents(), testOptions())

		c.Start(context.Background(), "run-1")
		c.Wait()

		st := c.State()
		require.Equal(t, domain.StatusErrored, st.Status)
		require.Equal(t, string(domain.ReasonInvalidRequest), st.ErrorCode)
	})

	t.Run("missing run fails the round", func(t *testing.T) {
		provider := newMockProvider(testModel)
		provider.script(emitAll(domain.StreamChunk{Done: true}))
		c := newTestController(t, provider, newMockStore())

		c.Start(context.Background(), "run-missing")
		c.Wait()

		require.Equal(t, domain.StatusErrored, c.State().Status)
	})

	t.Run("caller context cancellation does not leak into the round", func(t *testing.T) {
		doc := "<!DOCTYPE html><html></html>"
		provider := newMockProvider(testModel)
		provider.script(emitAll(
			domain.StreamChunk{Content: doc},
			domain.StreamChunk{Done: true},
		))
		store := newMockStore()
		store.seedRun("run-1", "p")
		c := newTestController(t, provider, store)

		ctx, cancel := context.WithCancel(context.Background())
		c.Start(ctx, "run-1")
		cancel() // the round detaches from the triggering request
		c.Wait()

		st := c.State()
		require.Equal(t, domain.StatusCompleted, st.Status)
		require.Equal(t, doc, st.Content)
	})
}

func TestClampTemperature(t *testing.T) {
	require.Equal(t, 0.0, clampTemperature(-1))
	require.Equal(t, 0.7, clampTemperature(0.7))
	require.Equal(t, 2.0, clampTemperature(3.5))
}
