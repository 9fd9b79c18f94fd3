// Package directory is the HTTP client for the identity directory service
// that owns the bot's user record, tag and registered devices.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bdobrica/shiori/common/retry"
	"github.com/bdobrica/shiori/internal/shiori/identity"
)

// Config holds directory client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Retry applies to GET requests only.
	Retry retry.Policy
}

// APIError is a non-2xx answer from the directory.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory: HTTP %d: %s", e.Status, e.Body)
}

// Client talks to the directory REST API. It implements identity.Directory.
type Client struct {
	baseURL string
	token   string
	retry   retry.Policy
	http    *http.Client
}

var _ identity.Directory = (*Client)(nil)

// New returns a Client for cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := cfg.Retry
	if policy.Attempts == 0 {
		policy = retry.DefaultPolicy
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retry:   policy,
		http:    &http.Client{Timeout: timeout},
	}
}

// PatchUser updates the given user and returns the stored record.
func (c *Client) PatchUser(ctx context.Context, id string, fields identity.UserFields) (*identity.Identity, error) {
	var out identity.Identity
	if err := c.do(ctx, http.MethodPatch, "/v1/user/"+url.PathEscape(id)+"/", fields, &out); err != nil {
		return nil, fmt.Errorf("patch user %s: %w", id, err)
	}
	return &out, nil
}

// PatchTag updates the given tag and returns the stored record.
func (c *Client) PatchTag(ctx context.Context, id string, fields identity.TagFields) (*identity.Tag, error) {
	var out identity.Tag
	if err := c.do(ctx, http.MethodPatch, "/v1/tag/"+url.PathEscape(id)+"/", fields, &out); err != nil {
		return nil, fmt.Errorf("patch tag %s: %w", id, err)
	}
	return &out, nil
}

// ListDevices returns the devices registered for the authenticated account.
func (c *Client) ListDevices(ctx context.Context) ([]identity.Device, error) {
	var out []identity.Device
	if err := c.list(ctx, "directory.list_devices", "/v1/provision/account/", &out); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

// ListUsers returns the users with the given IDs.
func (c *Client) ListUsers(ctx context.Context, ids []string) ([]identity.Identity, error) {
	q := url.Values{"id_in": {strings.Join(ids, ",")}}
	var out []identity.Identity
	if err := c.list(ctx, "directory.list_users", "/v1/user/?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// list GETs a collection. The directory answers either with a bare array or
// with a paginated {"results": [...]} envelope; only the first page is read.
func (c *Client) list(ctx context.Context, op, path string, out any) error {
	var raw json.RawMessage
	err := retry.Do(ctx, c.retry, op, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, &raw)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return fmt.Errorf("decode page: %w", err)
		}
		trimmed = page.Results
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
