// Package engine talks to the external workflow engine that generates itineraries.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/models"
)

// MaxResponseBytes caps how much of an engine response is read.
const MaxResponseBytes = 10 << 20

// Request is the body posted to the engine: the traveller's preferences plus, for
// async submissions, where and under which session to deliver the result.
type Request struct {
	models.Preferences
	CallbackURL string `json:"callbackUrl,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// Response is a successful (2xx) engine answer.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client sends planning requests to an engine.
type Client interface {
	// Name returns the client identifier.
	Name() string

	// Send posts req once. Transport failures and non-2xx answers are returned as
	// SUBMISSION_FAILED errors; there is no retry.
	Send(ctx context.Context, req *Request) (*Response, error)
}

// WebhookClient posts JSON to the engine's webhook URL.
type WebhookClient struct {
	url    string
	http   *http.Client
	logger *logrus.Entry
}

// NewWebhookClient creates a client for url. timeout bounds each request.
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewLogger("engine"),
	}
}

// Name returns the connector identifier.
func (c *WebhookClient) Name() string {
	return "webhook"
}

// Send posts req to the webhook.
func (c *WebhookClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.url == "" {
		return nil, apperr.ConfigMissing("engine webhook URL")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeConfigInvalid, "the engine webhook URL is malformed")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	log := c.logger.WithFields(logrus.Fields{"session_id": req.SessionID, "destination": req.Destination})
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.WithError(err).Warn("Engine request failed")
		return nil, apperr.SubmissionFailed(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, apperr.SubmissionFailed(fmt.Errorf("read engine response: %w", err))
	}

	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start).Round(time.Millisecond)})
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("body", truncate(data, 512)).Warn("Engine rejected request")
		return nil, apperr.EngineStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	log.Debug("Engine accepted request")

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
