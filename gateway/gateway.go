// Package gateway implements an authenticated HTTP client for the central
// API gateway. It is a stateless façade: every call is a bearer-authenticated
// request against the gateway host. Retry policy around registration calls is
// owned by the service runtime, not this client.
package gateway

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
)

// Config holds the gateway connection parameters.
type Config struct {
	// Host is the gateway address (host or host:port, no scheme).
	Host string

	// Key is the bearer credential sent with every request.
	Key string

	// HostFrontend is the public-facing hostname.
	HostFrontend string

	// HostBackend is the internal hostname.
	HostBackend string
}

// Client is a stateless authenticated HTTP client to the API gateway.
type Client struct {
	cfg    Config
	httpc  *http.Client
	bearer string
}

// New creates a gateway client from config.
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		bearer: "Bearer " + cfg.Key,
	}
}

// FrontendURL computes the public-facing URL for a path, prepending http://
// when the configured frontend host carries no scheme.
func (c *Client) FrontendURL(path string) string {
	host := c.cfg.HostFrontend
	if !strings.HasPrefix(host, "http") {
		host = "http://" + host
	}
	return host + "/" + path
}

// Get performs an authenticated GET against the gateway. The JSON response
// body is decoded into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := "http://" + c.cfg.Host + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

// Post performs an authenticated POST with a JSON payload.
func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPost, "http://"+c.cfg.Host+"/"+path, payload, out)
}

// Put performs an authenticated PUT with a JSON payload.
func (c *Client) Put(ctx context.Context, path string, payload, out any) error {
	return c.do(ctx, http.MethodPut, "http://"+c.cfg.Host+"/"+path, payload, out)
}

// Delete performs an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "http://"+c.cfg.Host+"/"+path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("could not encode gateway payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		}
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not parse gateway response: %w", err)
		}
	}
	return nil
}
