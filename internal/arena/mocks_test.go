package arena

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

func testEvents() *observability.EventBus {
	return observability.NewEventBus(zap.NewNop())
}

// mockProvider scripts the stream per call: each invocation pops the next
// streamFn, the last one repeats.
type mockProvider struct {
	name   string
	models map[string]bool

	mu        sync.Mutex
	streamFns []func(ctx context.Context) <-chan domain.StreamChunk
	calls     int
}

func newMockProvider(models ...string) *mockProvider {
	set := make(map[string]bool, len(models))
	for _, m := range models {
		set[m] = true
	}
	return &mockProvider{name: "mock", models: set}
}

func (p *mockProvider) script(fns ...func(ctx context.Context) <-chan domain.StreamChunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamFns = fns
}

func (p *mockProvider) streamCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *mockProvider) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	p.mu.Lock()
	if !p.models[req.Model] {
		p.mu.Unlock()
		return nil, fmt.Errorf("model %s is not supported", req.Model)
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.streamFns) {
		idx = len(p.streamFns) - 1
	}
	fn := p.streamFns[idx]
	p.mu.Unlock()

	return fn(ctx), nil
}

func (p *mockProvider) OpenRaw(context.Context, *domain.GenerationRequest) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (p *mockProvider) Name() string { return p.name }

func (p *mockProvider) IsModelSupported(_ context.Context, model string) bool {
	return p.models[model]
}

func (p *mockProvider) SupportedModels(context.Context) []string {
	models := make([]string, 0, len(p.models))
	for m := range p.models {
		models = append(models, m)
	}
	return models
}

// emitAll returns a stream function that sends each chunk in order and then
// closes; it aborts silently on cancellation.
func emitAll(chunks ...domain.StreamChunk) func(ctx context.Context) <-chan domain.StreamChunk {
	return func(ctx context.Context) <-chan domain.StreamChunk {
		out := make(chan domain.StreamChunk)
		go func() {
			defer close(out)
			for _, chunk := range chunks {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	}
}

// emitThenBlock sends the given chunks and then holds the stream open until
// cancellation.
func emitThenBlock(chunks ...domain.StreamChunk) func(ctx context.Context) <-chan domain.StreamChunk {
	return func(ctx context.Context) <-chan domain.StreamChunk {
		out := make(chan domain.StreamChunk)
		go func() {
			defer close(out)
			for _, chunk := range chunks {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			<-ctx.Done()
		}()
		return out
	}
}

// mockStore is an in-memory RunStore.
type mockStore struct {
	mu        sync.Mutex
	runs      map[string]*domain.Run
	artifacts []*domain.Artifact
	createErr error
	nextID    int
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[string]*domain.Run)}
}

func (s *mockStore) CreateRun(_ context.Context, params domain.CreateRunParams) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	run := &domain.Run{
		ID:     fmt.Sprintf("run-%d", s.nextID),
		Prompt: params.Prompt,
		ModelA: params.ModelA,
		ModelB: params.ModelB,
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *mockStore) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (s *mockStore) SaveArtifact(_ context.Context, artifact *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, artifact)
	return nil
}

func (s *mockStore) seedRun(id, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = &domain.Run{ID: id, Prompt: prompt}
}

func (s *mockStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *mockStore) savedArtifacts() []*domain.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Artifact(nil), s.artifacts...)
}
