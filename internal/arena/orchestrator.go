// Package arena implements the concurrent dual-stream generation pipeline:
// two model slots streaming against a completion provider in parallel, with
// bounded-frequency state commits, document extraction at stream close, and
// coordinated stop/retry.
package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/config"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

// Orchestrator composes the two slot controllers under one comparison run.
type Orchestrator struct {
	store  domain.RunStore
	events *observability.EventBus
	a      *Controller
	b      *Controller

	mu  sync.Mutex
	run *domain.Run
}

// NewOrchestrator creates the dual-slot orchestrator (DI constructor).
func NewOrchestrator(
	cfg *config.ArenaConfig,
	registry domain.ProviderRegistry,
	store domain.RunStore,
	events *observability.EventBus,
) *Orchestrator {
	opts := Options{
		FlushInterval: time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
	}

	return &Orchestrator{
		store:  store,
		events: events,
		a:      NewController(domain.SlotA, cfg.ModelA, registry, store, events, opts),
		b:      NewController(domain.SlotB, cfg.ModelB, registry, store, events, opts),
	}
}

// Slot returns the controller for the given slot.
func (o *Orchestrator) Slot(slot domain.Slot) (*Controller, error) {
	switch slot {
	case domain.SlotA:
		return o.a, nil
	case domain.SlotB:
		return o.b, nil
	default:
		return nil, fmt.Errorf("invalid slot: %q", slot)
	}
}

// Generate starts a fresh comparison round: stop anything in flight, create
// the parent run (the run id must exist before any stream byte flows), then
// start both slots without waiting for either. A quota failure on run
// creation surfaces to the caller with no stream started.
func (o *Orchestrator) Generate(ctx context.Context, prompt, identifier string) (*domain.Run, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}

	o.StopAll()

	run, err := o.store.CreateRun(ctx, domain.CreateRunParams{
		Prompt:     prompt,
		ModelA:     o.a.Model(),
		ModelB:     o.b.Model(),
		Identifier: identifier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	o.mu.Lock()
	o.run = run
	o.mu.Unlock()

	ctx = observability.WithRunID(ctx, run.ID)
	o.events.Publish(ctx, "generation_started", map[string]interface{}{
		"model_a": run.ModelA,
		"model_b": run.ModelB,
	})

	// Both streams in flight simultaneously; neither is awaited.
	o.a.Start(ctx, run.ID)
	o.b.Start(ctx, run.ID)

	return run, nil
}

// Regenerate restarts a single slot against the existing run id; the
// sibling slot's state is untouched.
func (o *Orchestrator) Regenerate(ctx context.Context, slot domain.Slot) error {
	controller, err := o.Slot(slot)
	if err != nil {
		return err
	}

	o.mu.Lock()
	run := o.run
	o.mu.Unlock()

	if run == nil {
		return errors.New("no active run to regenerate")
	}

	controller.Start(ctx, run.ID)
	return nil
}

// StopAll stops both slots.
func (o *Orchestrator) StopAll() {
	o.a.Stop()
	o.b.Stop()
}

// IsAnyLoading reports whether either slot is streaming.
func (o *Orchestrator) IsAnyLoading() bool {
	return o.a.Streaming() || o.b.Streaming()
}

// IsAllCompleted reports whether both slots reached completed.
func (o *Orchestrator) IsAllCompleted() bool {
	return o.a.Completed() && o.b.Completed()
}

// Run returns the current comparison run, if any.
func (o *Orchestrator) Run() *domain.Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Status is a point-in-time snapshot of the whole session.
type Status struct {
	Run          *domain.Run      `json:"run,omitempty"`
	SlotA        domain.SlotState `json:"slotA"`
	SlotB        domain.SlotState `json:"slotB"`
	AnyLoading   bool             `json:"anyLoading"`
	AllCompleted bool             `json:"allCompleted"`
}

// Snapshot captures both slots and the aggregate flags.
func (o *Orchestrator) Snapshot() Status {
	return Status{
		Run:          o.Run(),
		SlotA:        o.a.State(),
		SlotB:        o.b.State(),
		AnyLoading:   o.IsAnyLoading(),
		AllCompleted: o.IsAllCompleted(),
	}
}
