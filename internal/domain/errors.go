package domain

import "errors"

// Reason is a machine-readable failure code carried across the relay
// boundary and into slot error classification.
type Reason string

const (
	ReasonQuotaExceeded       Reason = "quota_exceeded"
	ReasonUpstreamUnavailable Reason = "upstream_unavailable"
	ReasonInvalidRequest      Reason = "invalid_request"
)

// Sentinel errors for the run and like boundaries.
var (
	// ErrQuotaExceeded indicates the caller's generation quota is spent.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrRunNotFound indicates no run exists for the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNotAuthorized indicates the authority rejected the actor.
	ErrNotAuthorized = errors.New("not authorized")
)

// StreamError is a structured upstream failure with a reason code, relayed
// downstream instead of being silently swallowed.
type StreamError struct {
	Reason  Reason `json:"error"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	return string(e.Reason) + ": " + e.Message
}

// ClassifyReason extracts the reason code from an error, defaulting to
// upstream_unavailable for transport-level failures.
func ClassifyReason(err error) Reason {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Reason
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return ReasonQuotaExceeded
	}
	return ReasonUpstreamUnavailable
}
