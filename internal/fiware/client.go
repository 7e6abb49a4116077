package fiware

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/wastetwin/provision-core/internal/infrastructure/config"
)

// maxErrorBodySize bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBodySize = 4 << 10 // 4KB

// Client talks to the platform's provisioning APIs.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//     The token is guarded; provisioning calls are independent requests.
type Client struct {
	httpClient *http.Client
	platform   config.Platform
	auth       config.AuthConfig

	token   string
	tokenMu sync.RWMutex
}

// New creates a Client from the loaded configuration.
//
// The underlying http.Client applies the configured request timeout; TLS
// verification can be disabled for lab deployments with self-signed
// certificates.
func New(cfg *config.Config) *Client {
	transport := http.DefaultTransport
	if cfg.HTTP.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicit opt-in for lab platforms
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout(),
			Transport: transport,
		},
		platform: cfg.Platform,
		auth:     cfg.Auth,
	}
}

// Authenticate obtains a scoped token from the identity service.
//
// The token is scoped to the configured service (domain) and subservice
// (project) and stored for use by every subsequent call. The login flow's
// internals belong to the identity service; this client only keeps the
// resulting X-Subject-Token.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrUnauthorized on rejected credentials, ErrTransport otherwise
func (c *Client) Authenticate(ctx context.Context) error {
	request := map[string]any{
		"auth": map[string]any{
			"scope": map[string]any{
				"project": map[string]any{
					"domain": map[string]any{"name": c.platform.Service},
					"name":   c.platform.Subservice,
				},
			},
			"identity": map[string]any{
				"methods": []string{"password"},
				"password": map[string]any{
					"user": map[string]any{
						"domain":   map[string]any{"name": c.platform.Service},
						"name":     c.auth.Username,
						"password": c.auth.Password,
					},
				},
			},
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding auth request: %w", err)
	}

	authURL := c.platform.KeystoneURL + "/v3/auth/tokens"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 204 {
		return c.statusError(http.MethodPost, authURL, resp)
	}

	token := resp.Header.Get("X-Subject-Token")
	if token == "" {
		return fmt.Errorf("%w: identity service returned no X-Subject-Token", ErrUnauthorized)
	}

	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
	return nil
}

// currentToken returns the stored token, or ErrNoToken before Authenticate.
func (c *Client) currentToken() (string, error) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	if c.token == "" {
		return "", ErrNoToken
	}
	return c.token, nil
}

// do issues one scoped, authenticated request and validates the status code.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - method: HTTP method
//   - rawURL: absolute request URL
//   - query: optional query parameters
//   - body: optional JSON body
//   - accept: predicate over the response status code
//
// Returns:
//   - error: nil when accept(status); *StatusError otherwise, wrapping the
//     sentinel that classifies the status code
func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body any, accept func(int) bool) error {
	token, err := c.currentToken()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Fiware-Service", c.platform.Service)
	req.Header.Set("Fiware-ServicePath", c.platform.Subservice)
	req.Header.Set("X-Auth-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, rawURL, err)
	}
	defer resp.Body.Close()

	if !accept(resp.StatusCode) {
		return c.statusError(method, rawURL, resp)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// statusError builds a *StatusError from an unexpected response.
func (c *Client) statusError(method, rawURL string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &StatusError{
		Method: method,
		URL:    rawURL,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
		Err:    classifyStatus(resp.StatusCode),
	}
}

// created accepts the create-style success codes the platform APIs return.
func created(status int) bool {
	return status >= 200 && status <= 204
}

// deleted accepts delete success plus 404: deleting an absent target is
// treated as already-done so repeated deletions stay idempotent.
func deleted(status int) bool {
	return (status >= 200 && status <= 204) || status == 404
}
