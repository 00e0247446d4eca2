// Package backend talks to the prediction API.
package backend

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

const maxResponseBytes = 4 << 20

var (
	// ErrUnavailable covers transport failures and timeouts.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrStatus covers non-2xx responses.
	ErrStatus = errors.New("backend returned error status")
)

// RequestError describes a failed call to one endpoint.
type RequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client wraps interactions with the prediction API.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient constructs a client. Every call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Post sends body as JSON to endpoint and returns the response verbatim.
// A nil body sends an empty request. Bodies that are not JSON are returned
// as a JSON string so callers can always render them.
func (c *Client) Post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req, endpoint)
	if err != nil {
		return nil, err
	}
	return asJSON(raw), nil
}

// Ping checks if the prediction API is alive.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &RequestError{Endpoint: "/health", Err: err}
	}
	_, err = c.do(req, "/health")
	return err
}

// SystemStatus is the subset of GET /status the dashboard reads.
type SystemStatus struct {
	Status      string         `json:"status"`
	Uptime      string         `json:"uptime"`
	Requests    int64          `json:"requests"`
	SystemState map[string]any `json:"system_state"`
	Error       string         `json:"error,omitempty"`
}

// Status fetches the backend self-report.
func (c *Client) Status(ctx context.Context) (SystemStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return SystemStatus{}, &RequestError{Endpoint: "/status", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	raw, err := c.do(req, "/status")
	if err != nil {
		return SystemStatus{}, err
	}
	var status SystemStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return SystemStatus{}, &RequestError{Endpoint: "/status", Err: fmt.Errorf("decode status: %w", err)}
	}
	return status, nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: read body: %w", ErrUnavailable, err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: ErrStatus}
	}
	return payload, nil
}

func asJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return json.RawMessage("null")
	}
	return quoted
}
