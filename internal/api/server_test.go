package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	apprun "github.com/siteqa/siteqa/internal/application/run"
	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/guard"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

type fakeRuns struct {
	mu       sync.Mutex
	started  []apprun.Request
	startErr error
	runs     map[string]run.Snapshot
	updates  []run.Snapshot
	limit    int
}

func (f *fakeRuns) StartRun(_ context.Context, req apprun.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, req)
	return fmt.Sprintf("run-%d", len(f.started)), nil
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (run.Snapshot, error) {
	snap, ok := f.runs[id]
	if !ok {
		return run.Snapshot{}, fmt.Errorf("failed to get test run: %w", sharedErrors.ErrRunNotFound)
	}
	return snap, nil
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]run.Snapshot, error) {
	f.limit = limit
	out := make([]run.Snapshot, 0, len(f.runs))
	for _, snap := range f.runs {
		out = append(out, snap)
	}
	return out, nil
}

func (f *fakeRuns) Subscribe(_ context.Context, id string) (<-chan run.Snapshot, func(), error) {
	if _, ok := f.runs[id]; !ok {
		return nil, nil, sharedErrors.ErrRunNotFound
	}
	ch := make(chan run.Snapshot, len(f.updates))
	for _, snap := range f.updates {
		ch <- snap
	}
	close(ch)
	return ch, func() {}, nil
}

func newTestServer(t *testing.T, runs *fakeRuns, token string) *Server {
	t.Helper()
	return NewServer(Config{Runs: runs, AuthToken: token, Logger: zaptest.NewLogger(t)})
}

func intPtr(v int) *int { return &v }

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]string{"status": "ok"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content-type, got %s", got)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestWriteErrorInternal(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := &Server{cfg: Config{Logger: logger}}

	rr := httptest.NewRecorder()
	s.writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusInternalServerError, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Fatalf("expected sanitized message, got %s", rr.Body.String())
	}
}

func TestWriteErrorClient(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	s.writeError(rr, nil, http.StatusBadRequest, errors.New("bad input"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bad input") {
		t.Fatalf("expected original error message, got %s", rr.Body.String())
	}
}

func TestWriteStreamChunk(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	if !s.writeStreamChunk(rr, []byte("hello")) {
		t.Fatal("expected writeStreamChunk to succeed")
	}
	if rr.Body.String() != "hello" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	if s.writeStreamChunk(&failingWriter{}, []byte("fail")) {
		t.Fatalf("expected writeStreamChunk to fail")
	}
}

func TestCreateRun(t *testing.T) {
	runs := &fakeRuns{}
	srv := newTestServer(t, runs, "")

	body := `{"url":"https://example.com","username":"alice","password":"s3cret","login_url":"https://example.com/login","max_pages":5}`
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var created RunCreated
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID != "run-1" {
		t.Errorf("expected id run-1, got %q", created.ID)
	}

	req := runs.started[0]
	if req.URL != "https://example.com" || req.MaxPages != 5 {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Login == nil {
		t.Fatal("expected login request")
	}
	if req.Login.LoginURL != "https://example.com/login" {
		t.Errorf("expected login url, got %q", req.Login.LoginURL)
	}
	if req.Login.Credentials.Username != "alice" {
		t.Errorf("expected username alice, got %q", req.Login.Credentials.Username)
	}
}

func TestCreateRun_LoginNeedsBothFields(t *testing.T) {
	runs := &fakeRuns{}
	srv := newTestServer(t, runs, "")

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/runs",
		strings.NewReader(`{"url":"https://example.com","username":"alice"}`)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if runs.started[0].Login != nil {
		t.Error("expected no login without a password")
	}
}

func TestCreateRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		contains string
	}{
		{name: "malformed body", body: `{`, status: http.StatusBadRequest, contains: "invalid request body"},
		{name: "missing url", body: `{}`, status: http.StatusBadRequest, contains: "url is required"},
		{name: "negative max pages", body: `{"url":"https://example.com","max_pages":-1}`, status: http.StatusBadRequest, contains: "max_pages"},
		{
			name:     "blocked origin",
			body:     `{"url":"http://127.0.0.1"}`,
			startErr: &guard.BlockedOriginError{URL: "http://127.0.0.1", Reason: "address in blocked range"},
			status:   http.StatusBadRequest,
			contains: "address in blocked range",
		},
		{
			name:     "invalid input",
			body:     `{"url":"https://example.com"}`,
			startErr: fmt.Errorf("%w: bad", sharedErrors.ErrInvalidInput),
			status:   http.StatusBadRequest,
			contains: "invalid input",
		},
		{
			name:     "internal",
			body:     `{"url":"https://example.com"}`,
			startErr: errors.New("disk on fire"),
			status:   http.StatusInternalServerError,
			contains: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeRuns{startErr: tt.startErr}, "")
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(tt.body)))

			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "disk on fire") {
				t.Error("expected internal error details to be hidden")
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	runs := &fakeRuns{runs: map[string]run.Snapshot{
		"abc": {ID: "abc", URL: "https://example.com", Status: run.RunStatusCompleted, OverallScore: intPtr(90)},
	}}
	srv := newTestServer(t, runs, "")

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"id":"abc"`) {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestListRuns_Limit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: defaultListLimit},
		{query: "?limit=5", want: 5},
		{query: "?limit=zero", want: defaultListLimit},
		{query: "?limit=-3", want: defaultListLimit},
	}
	for _, tt := range tests {
		runs := &fakeRuns{}
		srv := newTestServer(t, runs, "")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs"+tt.query, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tt.query, rr.Code)
		}
		if runs.limit != tt.want {
			t.Errorf("%q: expected limit %d, got %d", tt.query, tt.want, runs.limit)
		}
	}
}

func TestRunStream(t *testing.T) {
	summary := "All good"
	runs := &fakeRuns{
		runs: map[string]run.Snapshot{"abc": {ID: "abc"}},
		updates: []run.Snapshot{
			{ID: "abc", Status: run.RunStatusRunning},
			{ID: "abc", Status: run.RunStatusCompleted, OverallScore: intPtr(88), Summary: &summary},
		},
	}
	srv := newTestServer(t, runs, "")

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc/stream", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", got)
	}
	body := rr.Body.String()
	if n := strings.Count(body, "event: step\n"); n != 2 {
		t.Errorf("expected 2 step events, got %d:\n%s", n, body)
	}
	if !strings.Contains(body, "event: done\n") {
		t.Fatalf("expected done event, got:\n%s", body)
	}
	done := body[strings.Index(body, "event: done\n"):]
	for _, want := range []string{`"done":true`, `"test_id":"abc"`, `"overall_score":88`} {
		if !strings.Contains(done, want) {
			t.Errorf("expected done event to contain %s, got %s", want, done)
		}
	}
}

func TestRunStream_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeRuns{}, "")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope/stream", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAuthToken(t *testing.T) {
	srv := newTestServer(t, &fakeRuns{}, "secret")

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health to skip auth, got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &fakeRuns{}, "")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestCreateRun_LogsRequestIDWithRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	srv := NewServer(Config{Runs: &fakeRuns{}, Logger: zap.New(core)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("X-Request-ID", "req-7")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-ID"); got != "req-7" {
		t.Errorf("expected X-Request-ID req-7, got %q", got)
	}
	entries := logs.FilterMessage("run_accepted").All()
	if len(entries) != 1 {
		t.Fatalf("expected one run_accepted entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-7" || fields["run_id"] != "run-1" {
		t.Errorf("expected request_id req-7 and run_id run-1, got %v", fields)
	}
	if n := logs.FilterMessage("http_request").FilterField(zap.String("request_id", "req-7")).Len(); n != 1 {
		t.Errorf("expected the access log to carry the request id, got %d entries", n)
	}
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(Config{Runs: &fakeRuns{}, Logger: zaptest.NewLogger(t), RateLimit: 1, RateBurst: 1})

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}

func TestCORS(t *testing.T) {
	srv := NewServer(Config{Runs: &fakeRuns{}, Logger: zaptest.NewLogger(t), CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unknown origin, got %q", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("expected 192.0.2.1, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("expected 203.0.113.9, got %s", got)
	}
}

type failingWriter struct{}

func (f *failingWriter) Header() http.Header { return http.Header{} }
func (f *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}
func (f *failingWriter) WriteHeader(statusCode int) {}
