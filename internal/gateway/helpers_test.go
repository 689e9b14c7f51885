package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fentz26/tripassist/internal/audit"
	"github.com/fentz26/tripassist/internal/config"
	"github.com/fentz26/tripassist/internal/engine"
	"github.com/fentz26/tripassist/internal/itinerary"
	"github.com/fentz26/tripassist/internal/metrics"
	"github.com/fentz26/tripassist/internal/models"
	"github.com/fentz26/tripassist/internal/notify"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

const testTTL = 10 * time.Minute

const romeItinerary = `{"destination":"Rome","startDate":"2025-06-01","endDate":"2025-06-03","days":[{"day":1,"date":"2025-06-01","activities":[{"time":"9:00 AM","description":"Colosseum"}]}]}`

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeEngine is an httptest server standing in for the workflow engine.
type fakeEngine struct {
	*httptest.Server
	hits    atomic.Int32
	mu      sync.Mutex
	last    map[string]interface{}
	respond func(w http.ResponseWriter, body map[string]interface{})
}

func newFakeEngine(t *testing.T) *fakeEngine {
	e := &fakeEngine{
		respond: func(w http.ResponseWriter, _ map[string]interface{}) {
			w.WriteHeader(http.StatusOK)
		},
	}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.hits.Add(1)
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		e.mu.Lock()
		e.last = body
		respond := e.respond
		e.mu.Unlock()
		respond(w, body)
	}))
	t.Cleanup(e.Close)
	return e
}

func (e *fakeEngine) lastRequest() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

type envOptions struct {
	discipline string
	baseURL    string
	noEngine   bool
	server     ServerOptions
}

type testEnv struct {
	t       *testing.T
	svc     *Service
	store   *sessionstore.MemoryStore
	hub     *notify.Hub
	clock   *clock
	engine  *fakeEngine
	api     *httptest.Server
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if opts.discipline == "" {
		opts.discipline = config.DisciplineAsync
	}
	if opts.baseURL == "" {
		opts.baseURL = "https://trips.example.com"
	}

	clk := &clock{now: time.Now()}
	st := sessionstore.NewMemoryStore(sessionstore.WithTTL(testTTL), sessionstore.WithClock(clk.Now))
	hub := notify.NewHub()
	v, err := itinerary.NewValidator()
	require.NoError(t, err)
	m := metrics.New()

	fe := newFakeEngine(t)
	var eng engine.Client
	if !opts.noEngine {
		eng = engine.NewWebhookClient(fe.URL, 5*time.Second)
	}

	svc := NewService(ServiceConfig{
		Discipline:    opts.discipline,
		PublicBaseURL: opts.baseURL,
		SessionTTL:    testTTL,
	}, st, hub, eng, v, audit.NewRecorder(nil), m)
	svc.now = clk.Now

	api := httptest.NewServer(NewServer(svc, m, "", opts.server).Handler())
	t.Cleanup(api.Close)

	return &testEnv{t: t, svc: svc, store: st, hub: hub, clock: clk, engine: fe, api: api, metrics: m}
}

func validPreferences() models.Preferences {
	return models.Preferences{
		Destination: "Rome",
		Dates:       models.DateRange{From: "2025-06-01", To: "2025-06-03"},
		NumPeople:   2,
		AgeGroups:   []string{"25-34"},
		Interests:   []string{"history"},
		Budget:      models.Budget{Currency: "EUR", Amount: 1500},
		Transport:   []string{"train"},
	}
}

func (e *testEnv) do(method, path string, body interface{}) (*http.Response, []byte) {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.api.URL+path, r)
	require.NoError(e.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, data
}

func (e *testEnv) submit(prefs models.Preferences) (*http.Response, models.Submission) {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/submit", prefs)
	var sub models.Submission
	json.Unmarshal(data, &sub)
	return resp, sub
}

func (e *testEnv) result(id string) models.Result {
	e.t.Helper()
	resp, data := e.do(http.MethodGet, "/result?sessionId="+id, nil)
	require.Equal(e.t, http.StatusOK, resp.StatusCode, string(data))
	var r models.Result
	require.NoError(e.t, json.Unmarshal(data, &r))
	return r
}

func (e *testEnv) webhook(id, body string) (*http.Response, ackResponse) {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/webhook?sessionId="+id, body)
	var ack ackResponse
	json.Unmarshal(data, &ack)
	return resp, ack
}

// streamEvents is what a stream client saw before the server closed the stream.
type streamEvents struct {
	data       []models.Result
	keepAlives int
}

// openStream starts a stream request; the returned function waits for the stream
// to close and returns what it carried.
func (e *testEnv) openStream(ctx context.Context, id string) func() (streamEvents, error) {
	type outcome struct {
		ev  streamEvents
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.api.URL+"/stream?sessionId="+id, nil)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer resp.Body.Close()

		var ev streamEvents
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, ": keep-alive"):
				ev.keepAlives++
			case strings.HasPrefix(line, "data: "):
				var r models.Result
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &r); err != nil {
					done <- outcome{err: err}
					return
				}
				ev.data = append(ev.data, r)
			}
		}
		done <- outcome{ev: ev, err: scanner.Err()}
	}()

	return func() (streamEvents, error) {
		select {
		case o := <-done:
			return o.ev, o.err
		case <-time.After(5 * time.Second):
			e.t.Fatal("stream did not close")
			return streamEvents{}, nil
		}
	}
}
