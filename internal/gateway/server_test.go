package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthEndpoint_OK(t *testing.T) {
	env := newTestEnv(t, envOptions{server: ServerOptions{StoreBackend: "memory", Version: "1.2.3"}})

	resp, data := env.do(http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.Store != "ok" {
		t.Errorf("Expected store status 'ok', got '%s'", health.Store)
	}
	if health.Backend != "memory" {
		t.Errorf("Expected backend 'memory', got '%s'", health.Backend)
	}
	if health.Version != "1.2.3" {
		t.Errorf("Expected version 1.2.3, got %s", health.Version)
	}
	if health.Time == "" {
		t.Error("Expected time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp, _ := env.do(http.MethodPost, "/health", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.webhook("abc", `{"error":"x"}`)

	resp, data := env.do(http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(data), `tripassist_callbacks_total{outcome="engine_error"} 1`) {
		t.Errorf("callback counter missing from metrics output")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrMissingSessionID, http.StatusBadRequest},
		{ErrUnknownDiscipline, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.err); got != tt.want {
			t.Errorf("httpStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStreamingUnsupportedWriter(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	srv := NewServer(env.svc, env.metrics, "", ServerOptions{})

	w := &nonFlusher{header: http.Header{}}
	srv.handleStream(w, httptest.NewRequest(http.MethodGet, "/stream?sessionId=abc", nil))
	if w.status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.status)
	}
}

type nonFlusher struct {
	header http.Header
	status int
}

func (w *nonFlusher) Header() http.Header         { return w.header }
func (w *nonFlusher) Write(b []byte) (int, error) { return len(b), nil }
func (w *nonFlusher) WriteHeader(status int)      { w.status = status }
