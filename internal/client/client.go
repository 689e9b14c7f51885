// Package client is a Go client for the tripassist HTTP API.
package client

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

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/models"
)

// DefaultClientTimeout is the default timeout for non-streaming requests.
const DefaultClientTimeout = 10 * time.Second

// Polling defaults: one request every three seconds, at most a hundred times and
// never longer than five minutes overall.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 100
	DefaultMaxWait      = 5 * time.Minute
)

// Client wraps HTTP calls to the tripassist API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client

	// PollInterval is the wait between polls.
	PollInterval time.Duration
	// MaxAttempts bounds the number of polls before Poll gives up.
	MaxAttempts int
	// MaxWait bounds the total time Poll spends, slow requests included.
	MaxWait time.Duration
}

// New creates a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: DefaultClientTimeout},
		streamClient: &http.Client{Timeout: 0},
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
		MaxWait:      DefaultMaxWait,
	}
}

// WithSubmitTimeout returns a copy of c whose requests may take up to d, for sync
// submissions that wait on the engine.
func (c *Client) WithSubmitTimeout(d time.Duration) *Client {
	cp := *c
	cp.httpClient = &http.Client{Timeout: d}
	return &cp
}

// Submit posts travel preferences.
func (c *Client) Submit(ctx context.Context, prefs *models.Preferences) (*models.Submission, error) {
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, "/submit", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var sub models.Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &sub, nil
}

// Result fetches the current state of a session once.
func (c *Client) Result(ctx context.Context, sessionID string) (models.Result, error) {
	body, err := c.do(ctx, http.MethodGet, "/result?"+sessionQuery(sessionID), nil)
	if err != nil {
		return models.Result{}, err
	}
	var r models.Result
	if err := json.Unmarshal(body, &r); err != nil {
		return models.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

// Poll fetches the session every PollInterval until it is no longer pending. onTick,
// when set, is called after each attempt. After MaxAttempts pending answers, or
// once MaxWait has passed, a TIMEOUT error is returned; request errors count as
// attempts.
func (c *Client) Poll(parent context.Context, sessionID string, onTick func(attempt int, r models.Result, err error)) (models.Result, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	maxWait := c.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	ctx, cancel := context.WithTimeout(parent, maxWait)
	defer cancel()
	timedOut := func() (models.Result, error) {
		if err := parent.Err(); err != nil {
			return models.Result{}, err
		}
		return models.Result{}, apperr.Timeout(sessionID)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		r, err := c.Result(ctx, sessionID)
		if onTick != nil {
			onTick(attempt, r, err)
		}
		if err == nil && r.Status != models.SessionStatusPending {
			return r, ResultError(r)
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return timedOut()
		case <-ticker.C:
		}
	}
	return models.Result{}, apperr.Timeout(sessionID)
}

// Stream opens the result stream and waits for its single data event.
func (c *Client) Stream(ctx context.Context, sessionID string) (models.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream?"+sessionQuery(sessionID), nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return models.Result{}, fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.Result{}, decodeError(resp.StatusCode, body)
	}

	r, err := readEvent(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return models.Result{}, ctx.Err()
		}
		return models.Result{}, err
	}
	return r, ResultError(r)
}

// Health is the body of GET /health.
type Health struct {
	OK      bool   `json:"ok"`
	Store   string `json:"store"`
	Backend string `json:"backend,omitempty"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Health reports the server's status. An unhealthy store is returned as a
// Health with OK false, not as an error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeError turns an API error body into a coded error when possible.
func decodeError(status int, body []byte) error {
	var e struct {
		Error   string                 `json:"error"`
		Code    apperr.Code            `json:"code"`
		Details map[string]interface{} `json:"details"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if e.Code == "" {
			return fmt.Errorf("API error (%d): %s", status, e.Error)
		}
		return &apperr.Error{Code: e.Code, Message: e.Error, Details: e.Details}
	}
	return fmt.Errorf("API error (%d): %s", status, strings.TrimSpace(string(body)))
}

// ResultError converts a failed or not-found result to a coded error, and returns
// nil for anything else.
func ResultError(r models.Result) error {
	switch r.Status {
	case models.SessionStatusFailed:
		code := apperr.CodeEngineError
		switch r.Code {
		case models.FailureValidation:
			code = apperr.CodeValidationFailed
		case models.FailureTimeout:
			code = apperr.CodeTimeout
		case models.FailureNotFound:
			code = apperr.CodeNotFound
		}
		return apperr.New(code, r.Error)
	case models.SessionStatusNotFound:
		return apperr.New(apperr.CodeNotFound, r.Error)
	}
	return nil
}

func sessionQuery(id string) string {
	return url.Values{"sessionId": []string{id}}.Encode()
}
