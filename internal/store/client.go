package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StatusError reports a non-2xx response from the store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("store returned status %d: %s", e.Code, e.Body)
}

// Client talks to a remote store over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the store at baseURL. A nil httpClient uses
// http.DefaultClient; per-call deadlines come from the context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Write overwrites the remote state.
func (c *Client) Write(ctx context.Context, state State) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Read fetches the remote state. Fields absent from the stored record come
// back as empty strings.
func (c *Client) Read(ctx context.Context) (State, error) {
	fetchURL, err := c.fetchURL()
	if err != nil {
		return State{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return State{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("failed to fetch state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return State{}, statusError(resp)
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return State{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

// Ping reports whether the store answers fetches.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	if _, err := c.Read(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) fetchURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid store url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("action", "fetch")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
