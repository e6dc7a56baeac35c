// Package platform is the narrow client for the remote multi-service
// platform. It only knows how to authenticate, inspect and grant account
// roles, and invoke a service operation; everything above it (candidate
// resolution, telemetry, capability gating) lives in the gateway core.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrLoginRejected indicates the platform refused the credentials for the
// attempted tenant root. The resolver treats it like any other candidate
// failure; it exists so callers can tell rejection from transport trouble
// in logs.
var ErrLoginRejected = errors.New("platform rejected login")

// Credentials is an opaque credential pair passed through to the platform.
type Credentials struct {
	Username string
	Password string
}

// Role is one authorization grant, tagged with the tenant root it applies to.
type Role struct {
	Name       string `json:"name"`
	TenantRoot string `json:"tenantRoot"`
}

// StandardRoleBundle is the platform's standard role set granted during
// authorization repair.
var StandardRoleBundle = []string{"platform-user", "data-operator"}

const defaultTimeout = 30 * time.Second

// Client talks to one platform environment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the environment at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// BaseURL returns the environment base URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login authenticates against one tenant root and returns a bearer token.
func (c *Client) Login(ctx context.Context, tenantRoot string, creds Credentials) (string, error) {
	body := map[string]string{
		"tenant":   tenantRoot,
		"username": creds.Username,
		"password": creds.Password,
	}

	var response struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/auth/login", body, &response); err != nil {
		return "", err
	}
	if response.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return response.Token, nil
}

// AccountRoles returns the roles currently held by the authenticated account.
func (c *Client) AccountRoles(ctx context.Context, token string) ([]Role, error) {
	var response struct {
		Roles []Role `json:"roles"`
	}
	if err := c.get(ctx, "/auth/roles", token, &response); err != nil {
		return nil, fmt.Errorf("fetch account roles: %w", err)
	}
	return response.Roles, nil
}

// GrantRoles adds roles to the authenticated account. Granting roles the
// account already holds is a no-op on the platform side, never an error.
func (c *Client) GrantRoles(ctx context.Context, token string, roles []Role) error {
	body := map[string]interface{}{"roles": roles}
	if err := c.postAuthed(ctx, "/auth/roles", token, body, nil); err != nil {
		return fmt.Errorf("grant roles: %w", err)
	}
	return nil
}

// Invoke calls one operation of one platform service and returns the raw
// response payload. Retries and caching are deliberately left to callers.
func (c *Client) Invoke(ctx context.Context, token, service, operation string, payload interface{}) (json.RawMessage, error) {
	path := fmt.Sprintf("/services/%s/%s", service, operation)
	var response json.RawMessage
	if err := c.postAuthed(ctx, path, token, payload, &response); err != nil {
		return nil, fmt.Errorf("invoke %s.%s: %w", service, operation, err)
	}
	return response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, "", body, out)
}

func (c *Client) postAuthed(ctx context.Context, path, token string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, token, body, out)
}

func (c *Client) get(ctx context.Context, path, token string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, token, nil, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call platform: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrLoginRejected
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("platform returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
