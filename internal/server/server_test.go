package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jittakal/resistor/pkg/analytics"
)

type fakeEngine struct {
	snapshot analytics.Snapshot
	flushErr error
	flushes  int
	waited   bool
}

func (f *fakeEngine) Analytics() analytics.Snapshot { return f.snapshot }

func (f *fakeEngine) Flush(_ context.Context, wait bool) error {
	f.flushes++
	f.waited = wait
	return f.flushErr
}

func newTestServer(engine Engine, level *zap.AtomicLevel) *Server {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_requests_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	checker := &mockHealthChecker{liveness: true, readiness: true}
	return NewServer(Config{Port: 8080, Mode: "test"}, checker, engine, registry, level, zap.NewNop())
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil)

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/analytics", http.StatusOK},
		{http.MethodPost, "/flush", http.StatusAccepted},
		{http.MethodGet, "/log/level", http.StatusNotFound},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(s, tt.method, tt.path, "")
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(nil, nil)

	w := do(s, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), "test_requests_total 1") {
		t.Errorf("metrics body missing test_requests_total:\n%s", w.Body.String())
	}
	if w := do(s, http.MethodGet, "/analytics", ""); w.Code != http.StatusNotFound {
		t.Errorf("analytics without engine: status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestServer_Analytics(t *testing.T) {
	engine := &fakeEngine{}
	engine.snapshot.Record.Received = 42
	engine.snapshot.Thread.Active = 3
	s := newTestServer(engine, nil)

	w := do(s, http.MethodGet, "/analytics", "")
	var got analytics.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if got.Record.Received != 42 {
		t.Errorf("Record.Received = %d, want 42", got.Record.Received)
	}
	if got.Thread.Active != 3 {
		t.Errorf("Thread.Active = %d, want 3", got.Thread.Active)
	}
}

func TestServer_Flush(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		flushErr error
		wantCode int
		wantWait bool
		wantRuns int
	}{
		{"no body", "", nil, http.StatusAccepted, false, 1},
		{"wait", `{"wait":true}`, nil, http.StatusAccepted, true, 1},
		{"engine error", "", errors.New("engine deregistered"), http.StatusInternalServerError, false, 1},
		{"bad body", `{"wait":`, nil, http.StatusBadRequest, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{flushErr: tt.flushErr}
			s := newTestServer(engine, nil)

			w := do(s, http.MethodPost, "/flush", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if engine.flushes != tt.wantRuns {
				t.Errorf("flushes = %d, want %d", engine.flushes, tt.wantRuns)
			}
			if engine.waited != tt.wantWait {
				t.Errorf("wait = %v, want %v", engine.waited, tt.wantWait)
			}
		})
	}
}

func TestServer_LogLevel(t *testing.T) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	s := newTestServer(nil, &level)

	w := do(s, http.MethodPut, "/log/level", `{"level":"debug"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if level.Level() != zap.DebugLevel {
		t.Errorf("level = %v, want debug", level.Level())
	}

	w = do(s, http.MethodGet, "/log/level", "")
	if !strings.Contains(w.Body.String(), `"debug"`) {
		t.Errorf("GET /log/level body = %s, want debug", w.Body.String())
	}
}

func TestServer_CustomPaths(t *testing.T) {
	s := NewServer(Config{
		Port:          9000,
		Mode:          "test",
		LivenessPath:  "/livez",
		ReadinessPath: "/readyz",
		MetricsPath:   "/prom",
	}, &mockHealthChecker{liveness: true, readiness: false}, nil, prometheus.NewRegistry(), nil, zap.NewNop())

	if w := do(s, http.MethodGet, "/livez", ""); w.Code != http.StatusOK {
		t.Errorf("/livez status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(s, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if w := do(s, http.MethodGet, "/prom", ""); w.Code != http.StatusOK {
		t.Errorf("/prom status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w := do(s, http.MethodGet, "/health/live", ""); w.Code != http.StatusNotFound {
		t.Errorf("/health/live status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := newTestServer(nil, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v, want nil", err)
	}
}
