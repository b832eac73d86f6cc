package domain

import "time"

// Slot identifies one side of a comparison.
type Slot string

const (
	SlotA Slot = "a"
	SlotB Slot = "b"
)

// Valid reports whether the slot is one of the two recognized values.
func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB
}

// SlotStatus is the lifecycle state of a generation slot.
type SlotStatus string

const (
	StatusIdle      SlotStatus = "idle"
	StatusStreaming SlotStatus = "streaming"
	StatusCompleted SlotStatus = "completed"
	StatusErrored   SlotStatus = "errored"
)

// GenerationRequest represents a streaming completion request to a provider.
type GenerationRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// StreamChunk represents a single streaming delta. Content and Reasoning
// are independent channels; either may be empty on any given chunk.
type StreamChunk struct {
	Content   string
	Reasoning string
	Done      bool
	Tokens    int // authoritative completion tokens, if the provider reports them
	Err       error
}

// SlotState is the observable state of one generation slot. It is mutated
// only by the slot's owning controller; callers receive copies.
type SlotState struct {
	Slot        Slot       `json:"slot"`
	ModelID     string     `json:"modelId"`
	Status      SlotStatus `json:"status"`
	Content     string     `json:"content"`
	Reasoning   string     `json:"reasoning,omitempty"`
	Document    string     `json:"document,omitempty"`
	HasDocument bool       `json:"hasDocument"`
	Tokens      int        `json:"tokens,omitempty"`
	ElapsedSec  float64    `json:"elapsedSec,omitempty"`
	StartedAt   time.Time  `json:"startedAt,omitzero"`
	FinishedAt  time.Time  `json:"finishedAt,omitzero"`
	ErrorCode   string     `json:"errorCode,omitempty"`
}

// Run is the parent record uniting one prompt with its two slots. ID is
// assigned once, before either slot stream opens.
type Run struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	ModelA    string    `json:"modelA"`
	ModelB    string    `json:"modelB"`
	CreatedAt time.Time `json:"createdAt"`
}

// Artifact is the persisted result of one completed slot.
type Artifact struct {
	RunID      string  `json:"runId"`
	Slot       Slot    `json:"slot"`
	Document   string  `json:"document"`
	ElapsedSec float64 `json:"elapsedSec"`
	Tokens     int     `json:"tokens"`
}

// LikeResult is the authority's acknowledgement of a like toggle.
type LikeResult struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"likeCount"`
}
