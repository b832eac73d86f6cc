package arena

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/extract"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

// SystemPrompt frames every generation request.
const SystemPrompt = "You are an expert web developer. Your goal is to generate a single, self-contained HTML file for user's prompt."

const (
	// tokenEstimateDivisor derives a length-based token estimate when the
	// provider does not report an authoritative count. An approximation,
	// not a billing-accurate figure.
	tokenEstimateDivisor = 4

	persistTimeout = 10 * time.Second
)

// Options tunes a slot controller.
type Options struct {
	FlushInterval time.Duration
	Temperature   float64
	MaxTokens     int
}

// round holds everything owned by one generation attempt. A fresh round is
// created per Start; callbacks from a superseded round compare identity and
// no-op, so overlapping streams can never interleave into one slot's state.
type round struct {
	runID  string
	cancel context.CancelFunc
	buf    *deltaBuffer
	sched  *flushScheduler
	done   chan struct{}
}

// Controller owns the full lifecycle of a single generation slot:
// idle -> streaming -> {completed | errored}, with user stop treated as a
// successful partial completion.
type Controller struct {
	slot     domain.Slot
	registry domain.ProviderRegistry
	store    domain.RunStore
	events   *observability.EventBus
	opts     Options

	mu      sync.Mutex
	modelID string
	state   domain.SlotState
	round   *round
}

// NewController creates a controller for one slot.
func NewController(
	slot domain.Slot,
	modelID string,
	registry domain.ProviderRegistry,
	store domain.RunStore,
	events *observability.EventBus,
	opts Options,
) *Controller {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 50 * time.Millisecond
	}

	return &Controller{
		slot:     slot,
		registry: registry,
		store:    store,
		events:   events,
		opts:     opts,
		modelID:  modelID,
		state: domain.SlotState{
			Slot:    slot,
			ModelID: modelID,
			Status:  domain.StatusIdle,
		},
	}
}

// Model returns the slot's current model id.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelID
}

// SetModel changes the model used by the next round.
func (c *Controller) SetModel(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelID = modelID
}

// State returns a copy of the observable slot state.
func (c *Controller) State() domain.SlotState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether a round is in flight.
func (c *Controller) Streaming() bool {
	return c.State().Status == domain.StatusStreaming
}

// Completed reports whether the last round reached completed.
func (c *Controller) Completed() bool {
	return c.State().Status == domain.StatusCompleted
}

// Start begins a new round for the given run. Any in-flight round is fully
// stopped first, including scheduler teardown. Slot state is reset
// wholesale; nothing carries over between rounds. Start returns once the
// round is launched; stream failures surface as the errored state.
func (c *Controller) Start(ctx context.Context, runID string) {
	c.Stop()

	// The round outlives the request that triggered it; keep context
	// values for logging but detach the lifetime.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	streamCtx = observability.WithRunID(streamCtx, runID)
	streamCtx = observability.WithSlot(streamCtx, string(c.slot))

	buf := &deltaBuffer{}
	r := &round{
		runID:  runID,
		cancel: cancel,
		buf:    buf,
		done:   make(chan struct{}),
	}
	r.sched = newFlushScheduler(c.opts.FlushInterval, buf, func(content, reasoning string) {
		c.commit(r, content, reasoning)
	})

	c.mu.Lock()
	c.state = domain.SlotState{
		Slot:      c.slot,
		ModelID:   c.modelID,
		Status:    domain.StatusStreaming,
		StartedAt: time.Now(),
	}
	c.round = r
	modelID := c.modelID
	c.mu.Unlock()

	streamCtx = observability.WithModel(streamCtx, modelID)
	r.sched.start()

	go c.run(streamCtx, r, modelID)
}

// Stop cancels the in-flight round, tears down its scheduler, performs the
// final buffer drain so no received text is lost, and marks the slot
// completed. A no-op when nothing is streaming.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.round
	if r == nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Teardown order matters. The scheduler goes first, while the round is
	// still current, so its last flush commits instead of being dropped as
	// stale. The consumer can still be delivering an in-flight chunk to the
	// buffer after cancellation; drain only once its loop has exited.
	r.sched.stop()
	r.cancel()
	<-r.done
	content, reasoning := r.buf.drain()

	c.mu.Lock()
	if c.round != r {
		// The round finished or was superseded while we were tearing down;
		// its terminal state stands.
		c.mu.Unlock()
		return
	}
	c.round = nil
	c.state.Content += content
	c.state.Reasoning += reasoning
	c.finalizeLocked(domain.StatusCompleted, 0)
	st := c.state
	c.mu.Unlock()

	c.events.Publish(context.Background(), "generation_stopped", map[string]interface{}{
		"slot":     string(c.slot),
		"model_id": st.ModelID,
		"run_id":   r.runID,
	})
}

// run opens the provider stream and consumes it to the end.
func (c *Controller) run(ctx context.Context, r *round, modelID string) {
	defer close(r.done)

	logger := observability.FromContext(ctx)

	run, err := c.store.GetRun(ctx, r.runID)
	if err != nil {
		c.fail(ctx, r, err)
		return
	}

	provider, err := c.registry.GetByModel(ctx, modelID)
	if err != nil {
		c.fail(ctx, r, &domain.StreamError{
			Reason:  domain.ReasonInvalidRequest,
			Message: err.Error(),
		})
		return
	}

	req := &domain.GenerationRequest{
		Model: modelID,
		Messages: []domain.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: run.Prompt},
		},
		Temperature: clampTemperature(c.opts.Temperature),
		MaxTokens:   c.opts.MaxTokens,
	}

	chunks, err := provider.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return // stopped before the stream opened
		}
		c.fail(ctx, r, err)
		return
	}

	logger.Info("slot stream opened")

	tokens := 0
	for chunk := range chunks {
		if chunk.Err != nil {
			if ctx.Err() != nil {
				return // cancellation-caused closure is never an error
			}
			c.fail(ctx, r, chunk.Err)
			return
		}
		if chunk.Tokens > 0 {
			tokens = chunk.Tokens
		}
		if chunk.Content != "" || chunk.Reasoning != "" {
			r.buf.add(chunk.Content, chunk.Reasoning)
		}
		if chunk.Done {
			break
		}
	}

	if ctx.Err() != nil {
		return // Stop already finalized the state
	}

	c.finish(ctx, r, tokens)
}

// commit moves one drained accumulation into observable state. Stale rounds
// are dropped on the floor.
func (c *Controller) commit(r *round, content, reasoning string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.round != r {
		return
	}
	c.state.Content += content
	c.state.Reasoning += reasoning
}

// finish handles normal stream close: final drain, one extraction pass,
// fire-and-forget persistence, transition to completed.
func (c *Controller) finish(ctx context.Context, r *round, tokens int) {
	r.sched.stop()
	content, reasoning := r.buf.drain()

	c.mu.Lock()
	if c.round != r {
		c.mu.Unlock()
		return
	}
	c.round = nil
	c.state.Content += content
	c.state.Reasoning += reasoning

	if doc, ok := extract.BestEffort(c.state.Content); ok {
		c.state.Document = doc
		c.state.HasDocument = true
	}

	c.finalizeLocked(domain.StatusCompleted, tokens)
	st := c.state
	c.mu.Unlock()

	c.events.Publish(ctx, "generation_completed", map[string]interface{}{
		"slot":        string(c.slot),
		"model_id":    st.ModelID,
		"duration_ms": int(st.ElapsedSec * 1000),
		"tokens":      st.Tokens,
	})

	if st.HasDocument {
		// Persistence is fire-and-forget: in-memory state is already
		// authoritative for the session, so failures are logged only.
		go c.persist(r.runID, st)
	}
}

// fail classifies the error, appends a human-readable marker to the content
// already accumulated, and transitions to errored.
func (c *Controller) fail(ctx context.Context, r *round, err error) {
	r.sched.stop()
	content, reasoning := r.buf.drain()

	c.mu.Lock()
	if c.round != r {
		c.mu.Unlock()
		return
	}
	c.round = nil
	c.state.Content += content
	c.state.Reasoning += reasoning
	c.state.Content += "\n\nError: " + err.Error()
	c.state.ErrorCode = string(domain.ClassifyReason(err))
	c.finalizeLocked(domain.StatusErrored, 0)
	st := c.state
	c.mu.Unlock()

	observability.FromContext(ctx).Error("slot generation failed",
		zap.Error(err),
		zap.String("error_code", st.ErrorCode),
	)
	c.events.Publish(ctx, "generation_error", map[string]interface{}{
		"slot":       string(c.slot),
		"model_id":   st.ModelID,
		"error_code": st.ErrorCode,
	})
}

// finalizeLocked stamps the terminal status, elapsed time, and token count.
// Caller holds c.mu.
func (c *Controller) finalizeLocked(status domain.SlotStatus, tokens int) {
	now := time.Now()
	c.state.Status = status
	c.state.FinishedAt = now
	if !c.state.StartedAt.IsZero() {
		c.state.ElapsedSec = now.Sub(c.state.StartedAt).Seconds()
	}
	if tokens > 0 {
		c.state.Tokens = tokens
	} else {
		c.state.Tokens = (len(c.state.Content) + tokenEstimateDivisor - 1) / tokenEstimateDivisor
	}
}

// persist stores the extracted artifact keyed by (runID, slot).
func (c *Controller) persist(runID string, st domain.SlotState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := c.store.SaveArtifact(ctx, &domain.Artifact{
		RunID:      runID,
		Slot:       c.slot,
		Document:   st.Document,
		ElapsedSec: st.ElapsedSec,
		Tokens:     st.Tokens,
	})
	if err != nil {
		observability.FromContext(ctx).Warn("failed to persist artifact",
			zap.String("run_id", runID),
			zap.String("slot", string(c.slot)),
			zap.Error(err),
		)
	}
}

// Wait blocks until the current round's consumer loop exits. Test helper.
func (c *Controller) Wait() {
	c.mu.Lock()
	r := c.round
	c.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

func clampTemperature(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 2:
		return 2
	default:
		return t
	}
}
