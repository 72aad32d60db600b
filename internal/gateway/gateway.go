package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tasksched/tasksched/internal/domain"
)

// Client authorizes task-service requests by calling the identity service.
// The task service holds no user store of its own: a credential is good only
// if the identity service vouches for it, twice per request (validate, then
// principal-info).
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client for the identity service at baseURL.
// The timeout bounds each of the two calls; without it a stalled identity
// service would hang every protected request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ValidateToken asks the identity service whether the credential is valid.
func (c *Client) ValidateToken(ctx context.Context, credential string) (bool, error) {
	resp, err := c.post(ctx, "/api/auth/validate", credential)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validate returned status %d", resp.StatusCode)
	}
	var valid bool
	if err := json.NewDecoder(resp.Body).Decode(&valid); err != nil {
		return false, fmt.Errorf("decode validate response: %w", err)
	}
	return valid, nil
}

// PrincipalInfo fetches the authenticated principal for the credential.
func (c *Client) PrincipalInfo(ctx context.Context, credential string) (*domain.Principal, error) {
	resp, err := c.post(ctx, "/api/auth/principal-info", credential)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("principal-info returned status %d", resp.StatusCode)
	}
	var principal domain.Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return nil, fmt.Errorf("decode principal response: %w", err)
	}
	if principal.ID == 0 {
		return nil, fmt.Errorf("principal-info returned no principal")
	}
	return &principal, nil
}

// Authenticate runs the two-call trust protocol: validate, then fetch the
// principal. Every failure mode — invalid token, transport error, bad
// status, empty body — collapses to domain.ErrUnauthorized, because the task
// service cannot distinguish a revoked credential from an unreachable
// identity service and must fail closed.
func (c *Client) Authenticate(ctx context.Context, credential string) (*domain.Principal, error) {
	valid, err := c.ValidateToken(ctx, credential)
	if err != nil {
		slog.Warn("identity service validate call failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if !valid {
		return nil, domain.ErrUnauthorized
	}

	principal, err := c.PrincipalInfo(ctx, credential)
	if err != nil {
		slog.Warn("identity service principal call failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	return principal, nil
}

func (c *Client) post(ctx context.Context, path, credential string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call identity service: %w", err)
	}
	return resp, nil
}
