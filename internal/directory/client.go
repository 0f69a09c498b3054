// Package directory is the REST client for the directory service's user
// records. A Client is a bearer-credential handle: it is bound to one token
// source (a cached delegated token or the app-only source) and issues the
// CRUD calls the gateway orchestrates.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"dirgate/pkg/faults"
)

const maxResponseBody = 1 << 20 // 1MB

// Client calls the directory service with a bearer credential.
type Client struct {
	base string
	hc   *http.Client
}

// Option tweaks client construction.
type Option func(*Client)

// WithHTTPClient sets the transport the token source wraps. Mainly for tests
// and custom timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// NewClient builds a handle over baseURL authorized by src.
func NewClient(baseURL string, src oauth2.TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("directory base URL is empty: %w", faults.ErrConfiguration)
	}
	if src == nil {
		return nil, fmt.Errorf("token source is nil: %w", faults.ErrConfiguration)
	}
	c := &Client{base: baseURL}
	for _, o := range opts {
		o(c)
	}
	base := c.hc
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	c.hc = oauth2.NewClient(ctx, src)
	return c, nil
}

// CreateUser adds a user record. The record's keys must already be in
// physical (namespaced) form where they are extension attributes.
func (c *Client) CreateUser(ctx context.Context, user map[string]any) error {
	return c.do(ctx, http.MethodPost, "/v1.0/users", user, nil, http.StatusCreated)
}

// ListUsers returns all user records, optionally restricted to the given
// properties.
func (c *Client) ListUsers(ctx context.Context, selectProps []string) ([]map[string]any, error) {
	var out struct {
		Value []map[string]any `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1.0/users"+selectQuery(selectProps), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetUser fetches one record by user principal name.
func (c *Client) GetUser(ctx context.Context, upn string, selectProps []string) (map[string]any, error) {
	var out map[string]any
	path := "/v1.0/users/" + url.PathEscape(upn) + selectQuery(selectProps)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUser patches a record.
func (c *Client) UpdateUser(ctx context.Context, upn string, user map[string]any) error {
	path := "/v1.0/users/" + url.PathEscape(upn)
	return c.do(ctx, http.MethodPatch, path, user, nil, http.StatusNoContent, http.StatusOK)
}

// DeleteUser removes a record.
func (c *Client) DeleteUser(ctx context.Context, upn string) error {
	path := "/v1.0/users/" + url.PathEscape(upn)
	return c.do(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent, http.StatusOK)
}

// Me fetches the record of the user the credential acts as. Only meaningful
// on delegated handles.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1.0/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func selectQuery(props []string) string {
	if len(props) == 0 {
		return ""
	}
	return "?$select=" + url.QueryEscape(strings.Join(props, ","))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, okStatuses ...int) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("directory %s %s: %w", method, path, faults.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	for _, s := range okStatuses {
		if resp.StatusCode == s {
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
			return nil
		}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("directory %s %s returned %d: %w", method, path, resp.StatusCode, faults.ErrUpstreamUnavailable)
	}
	return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
}

// StatusError is a non-5xx directory refusal, preserved so handlers can echo
// the status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory %s %s returned %d", e.Method, e.Path, e.StatusCode)
}
