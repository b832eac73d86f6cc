package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/arena"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/config"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

const relayBufferSize = 4 * 1024

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *arena.Orchestrator
	registry     domain.ProviderRegistry
	store        domain.RunStore
	likes        domain.LikeStore
	quota        domain.QuotaKeeper
	arenaCfg     *config.ArenaConfig
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	orchestrator *arena.Orchestrator,
	registry domain.ProviderRegistry,
	store domain.RunStore,
	likes domain.LikeStore,
	quota domain.QuotaKeeper,
	arenaCfg *config.ArenaConfig,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
		likes:        likes,
		quota:        quota,
		arenaCfg:     arenaCfg,
	}
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorPayload{Error: code, Message: message})
}

// actorIdentifier resolves the caller's identity: the actor header when
// present, the client address otherwise.
func actorIdentifier(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-Id"); actor != "" {
		return actor
	}
	return clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

type relayRequest struct {
	Slot        string   `json:"slot"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

// HandleRelay opens one upstream completion stream for a single slot and
// relays its event-stream bytes downstream verbatim. Downstream disconnect
// cancels the request context, which tears down the upstream connection.
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.PathValue("id")

	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), "invalid request body: "+err.Error())
		return
	}

	slot := domain.Slot(req.Slot)
	if !slot.Valid() {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), `invalid slot parameter, must be "a" or "b"`)
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), "model is required")
		return
	}

	ctx = observability.WithRunID(ctx, runID)
	ctx = observability.WithSlot(ctx, req.Slot)
	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.FromContext(ctx)

	run, err := h.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, string(domain.ReasonInvalidRequest), "run not found")
			return
		}
		logger.Error("failed to load run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(domain.ReasonUpstreamUnavailable), err.Error())
		return
	}

	provider, err := h.registry.GetByModel(ctx, req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest),
			"invalid model, must be one of the allowed models")
		return
	}

	// Quota is spent last: a request that fails validation or names an
	// unknown run must not burn a unit.
	if err := h.quota.ConsumeQuota(ctx, actorIdentifier(r)); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			writeError(w, http.StatusForbidden, string(domain.ReasonQuotaExceeded),
				"You have reached your generation limit. Please login or upgrade to continue.")
			return
		}
		logger.Error("quota check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(domain.ReasonUpstreamUnavailable), err.Error())
		return
	}

	temperature := h.arenaCfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	upstream, err := provider.OpenRaw(ctx, &domain.GenerationRequest{
		Model: req.Model,
		Messages: []domain.Message{
			{Role: "system", Content: arena.SystemPrompt},
			{Role: "user", Content: run.Prompt},
		},
		Temperature: clampTemperature(temperature),
		MaxTokens:   h.arenaCfg.MaxTokens,
	})
	if err != nil {
		h.writeUpstreamError(w, logger, err)
		return
	}
	defer upstream.Close()

	logger.Info("relay stream opened")
	h.relay(ctx, w, logger, upstream)
}

// writeUpstreamError converts a failed upstream open into a structured
// downstream error payload with a machine-readable reason code.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, logger *zap.Logger, err error) {
	logger.Error("upstream stream failed", zap.Error(err))

	var streamErr *domain.StreamError
	if !errors.As(err, &streamErr) {
		streamErr = &domain.StreamError{
			Reason:  domain.ReasonUpstreamUnavailable,
			Message: err.Error(),
		}
	}

	status := http.StatusBadGateway
	switch streamErr.Reason {
	case domain.ReasonQuotaExceeded:
		status = http.StatusForbidden
	case domain.ReasonInvalidRequest:
		status = http.StatusBadRequest
	case domain.ReasonUpstreamUnavailable:
		status = http.StatusBadGateway
	}
	writeError(w, status, string(streamErr.Reason), streamErr.Message)
}

// relay copies upstream bytes downstream without buffering or
// transformation, flushing per read.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, upstream io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, string(domain.ReasonUpstreamUnavailable), "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	buf := make([]byte, relayBufferSize)
	for {
		select {
		case <-ctx.Done():
			logger.Info("downstream disconnected, relay closed")
			return
		default:
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				logger.Info("downstream write failed, relay closed", zap.Error(writeErr))
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("upstream read failed", zap.Error(err))
			}
			return
		}
	}
}

type generatePayload struct {
	Prompt string `json:"prompt"`
}

// HandleArenaGenerate starts a fresh dual-slot round for the hosted session.
func (h *Handler) HandleArenaGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generatePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), "invalid request body: "+err.Error())
		return
	}

	run, err := h.orchestrator.Generate(ctx, req.Prompt, actorIdentifier(r))
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			writeError(w, http.StatusForbidden, string(domain.ReasonQuotaExceeded),
				"You have reached your generation limit. Please login or upgrade to continue.")
			return
		}
		observability.FromContext(ctx).Error("generate failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

// HandleArenaStatus reports both slots and the aggregate flags.
func (h *Handler) HandleArenaStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// HandleArenaStop stops both slots.
func (h *Handler) HandleArenaStop(w http.ResponseWriter, _ *http.Request) {
	h.orchestrator.StopAll()
	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// HandleSlotRegenerate restarts one slot against the current run.
func (h *Handler) HandleSlotRegenerate(w http.ResponseWriter, r *http.Request) {
	slot := domain.Slot(r.PathValue("slot"))
	if !slot.Valid() {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), `invalid slot parameter, must be "a" or "b"`)
		return
	}

	if err := h.orchestrator.Regenerate(r.Context(), slot); err != nil {
		writeError(w, http.StatusConflict, string(domain.ReasonInvalidRequest), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.orchestrator.Snapshot())
}

// HandleGetRun returns the run record.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, string(domain.ReasonInvalidRequest), "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, string(domain.ReasonUpstreamUnavailable), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}

type likePayload struct {
	Liked *bool `json:"liked"`
}

// HandleLike applies an absolute like target for the calling actor.
// Anonymous callers are rejected; the reconciliation loop rolls back on 401.
func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-Actor-Id")
	if actor == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}

	var req likePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), "invalid request body: "+err.Error())
		return
	}
	if req.Liked == nil {
		writeError(w, http.StatusBadRequest, string(domain.ReasonInvalidRequest), "liked target state is required")
		return
	}

	result, err := h.likes.ApplyLike(r.Context(), r.PathValue("id"), actor, *req.Liked)
	if err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		observability.FromContext(r.Context()).Error("like failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "like_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
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
