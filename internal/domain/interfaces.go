package domain

import (
	"context"
	"io"
)

// Provider represents any streaming completion provider.
type Provider interface {
	// Stream sends a completion request and returns a stream of chunks.
	// The returned channel is closed after the terminal chunk.
	Stream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)

	// OpenRaw opens the upstream event stream and returns its body verbatim,
	// for byte-level relay. The caller owns the closer.
	OpenRaw(ctx context.Context, req *GenerationRequest) (io.ReadCloser, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns the models this provider serves.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves a provider that supports the given model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// CreateRunParams carries everything needed to open a comparison run.
type CreateRunParams struct {
	Prompt     string
	ModelA     string
	ModelB     string
	Identifier string // quota identity: user id or client address
}

// RunStore persists runs and their slot artifacts.
type RunStore interface {
	// CreateRun assigns a run id and persists the parent record. It fails
	// with ErrQuotaExceeded before any stream is allowed to open.
	CreateRun(ctx context.Context, params CreateRunParams) (*Run, error)

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// SaveArtifact stores one slot's extracted document and metrics.
	SaveArtifact(ctx context.Context, artifact *Artifact) error
}

// LikeStore applies an absolute like target on behalf of a named actor.
type LikeStore interface {
	ApplyLike(ctx context.Context, entityID, actorID string, target bool) (*LikeResult, error)
}

// QuotaKeeper meters generation requests per caller identity.
type QuotaKeeper interface {
	// ConsumeQuota burns one unit and fails with ErrQuotaExceeded once the
	// identifier's limit is spent.
	ConsumeQuota(ctx context.Context, identifier string) error
}

// LikeAuthority applies an absolute like target for one actor and reports
// the confirmed state. Implementations must be idempotent: asserting an
// already-held state is a no-op.
type LikeAuthority interface {
	Apply(ctx context.Context, entityID string, target bool) (*LikeResult, error)
}
