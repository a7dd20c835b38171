// pkg/platform/client.go
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chartex/pkg/problems"
)

// Client is a handle on the platform public API bound to exactly one
// credential and therefore one scope: either a single installation (tenant
// delegated key or impersonation grant) or the extension's own service
// identity. Scoping is enforced by construction — a client never carries a
// second key, so a client obtained for installation A cannot address
// installation B's resources with A's authority.
type Client struct {
	base  string
	key   string
	scope string // installation id the key is scoped to; empty for the service key
	hc    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// NewServiceClient binds the extension's own service-level key. Only the
// impersonation exchange may be called through it.
func NewServiceClient(base, apiKey string, opts ...Option) *Client {
	return newClient(base, apiKey, "", opts...)
}

// NewInstallationClient binds a credential scoped to one installation.
func NewInstallationClient(base, apiKey, installationID string, opts ...Option) *Client {
	return newClient(base, apiKey, installationID, opts...)
}

func newClient(base, apiKey, scope string, opts ...Option) *Client {
	c := &Client{base: base, key: apiKey, scope: scope, hc: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// InstallationID returns the installation the client is scoped to, or "" for
// the service client.
func (c *Client) InstallationID() string { return c.scope }

// APIError is a non-2xx platform reply. The raw body is kept so web handlers
// can pass upstream errors through verbatim.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api: status %d", e.Status)
}

// Kind classifies the reply per the extension error taxonomy.
func (e *APIError) Kind() problems.Kind {
	switch {
	case e.Status == http.StatusNotFound:
		return problems.NotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return problems.CredentialDenied
	case e.Status >= 500:
		return problems.Transient
	default:
		return problems.InvalidRequest
	}
}

// do performs one API call. Network errors surface as Transient problems;
// non-2xx replies surface as *APIError wrapped with their taxonomy kind.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, problems.Wrap(problems.InvalidRequest, "encode request", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, problems.Wrap(problems.InvalidRequest, "build request", err)
	}
	req.Header.Set("Authorization", c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, problems.Wrap(problems.Transient, "platform api unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, problems.Wrap(problems.Transient, "read platform reply", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: raw}
		return resp, &problems.Error{Kind: apiErr.Kind(), Title: "platform api error", Detail: apiErr.Error(), Err: apiErr}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, problems.Wrap(problems.Transient, "decode platform reply", err)
		}
	}
	return resp, nil
}
