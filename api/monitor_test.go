package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/metrics"
	"github.com/use-agent/ratescout/scrape"
)

type fixedStatus struct {
	s scrape.RunStatus
}

func (f fixedStatus) Snapshot() scrape.RunStatus { return f.s }

func do(t *testing.T, m *Monitor, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	m := NewMonitor(config.MonitorConfig{Addr: "127.0.0.1:0"}, nil, nil)

	w := do(t, m, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf(`status field = %q, want "ok"`, body["status"])
	}
}

func TestStatusServesSnapshot(t *testing.T) {
	src := fixedStatus{s: scrape.RunStatus{
		Hotel:        "Grand Pine Hotel",
		Phase:        "pricing",
		Running:      true,
		DatesPlanned: 14,
		DatesDone:    3,
	}}
	m := NewMonitor(config.MonitorConfig{Addr: "127.0.0.1:0"}, src, nil)

	w := do(t, m, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got scrape.RunStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Hotel != "Grand Pine Hotel" || got.DatesDone != 3 || !got.Running {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestStatusWithoutSource(t *testing.T) {
	m := NewMonitor(config.MonitorConfig{Addr: "127.0.0.1:0"}, nil, nil)

	w := do(t, m, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mx := metrics.New()
	mx.IncAttempt("success")

	m := NewMonitor(config.MonitorConfig{Addr: "127.0.0.1:0"}, nil, mx.Registry)

	w := do(t, m, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ratescout_attempts_total") {
		t.Error("exposition missing ratescout_attempts_total")
	}
}

func TestMetricsDisabledWithoutRegistry(t *testing.T) {
	m := NewMonitor(config.MonitorConfig{Addr: "127.0.0.1:0"}, nil, nil)

	w := do(t, m, "/metrics")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no registry is wired", w.Code)
	}
}
