package like

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
)

const clientTimeout = 15 * time.Second

// HTTPAuthority is a LikeAuthority backed by the arena's like endpoint.
// The actor identity travels in the X-Actor-Id header.
type HTTPAuthority struct {
	baseURL    string
	actorID    string
	httpClient *http.Client
}

// NewHTTPAuthority creates an authority client for one actor.
func NewHTTPAuthority(baseURL, actorID string) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: baseURL,
		actorID: actorID,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Apply asserts the absolute target state and returns the confirmed one.
func (a *HTTPAuthority) Apply(ctx context.Context, entityID string, target bool) (*domain.LikeResult, error) {
	body, err := json.Marshal(map[string]bool{"liked": target})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal like request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/apps/%s/like", a.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create like request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.actorID != "" {
		req.Header.Set("X-Actor-Id", a.actorID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("like request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrNotAuthorized
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("like endpoint returned status %d", resp.StatusCode)
	}

	var result domain.LikeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode like response: %w", err)
	}

	return &result, nil
}
