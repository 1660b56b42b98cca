package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"sluice/internal/metrics"
	"sluice/internal/processor"
)

type fakeController struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	healthy  bool
	flushed  int
	started  int
	stopped  int
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeController) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return f.stopErr
}

func (f *fakeController) Status() processor.Status { return processor.Status{State: "running"} }

func (f *fakeController) Metrics() metrics.Snapshot {
	return metrics.Snapshot{Counters: metrics.Counters{Processed: 7}}
}

func (f *fakeController) Health() metrics.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return metrics.Health{Healthy: f.healthy, State: "running"}
}

func (f *fakeController) FlushMetrics() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeController) setHealthy(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
}

func (f *fakeController) counts() (started, stopped, flushed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.flushed
}

func startTestServer(t *testing.T, ctl Controller) string {
	t.Helper()
	s, err := StartServer(0, ctl)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	go func() { _ = s.Serve() }()
	t.Cleanup(s.Stop)
	return "http://" + s.Addr().String()
}

func doReq(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, raw)
		}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type = %q", ct)
	}
	return resp.StatusCode, body
}

func TestStartEndpoint(t *testing.T) {
	ctl := &fakeController{}
	base := startTestServer(t, ctl)

	code, body := doReq(t, http.MethodPost, base+"/api/stream/start")
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %v", code, body)
	}
	if started, _, _ := ctl.counts(); started != 1 {
		t.Fatalf("controller.Start called %d times", started)
	}
}

func TestStartEndpoint_Conflict(t *testing.T) {
	base := startTestServer(t, &fakeController{startErr: processor.ErrAlreadyRunning})

	code, body := doReq(t, http.MethodPost, base+"/api/stream/start")
	if code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %v", code, body)
	}
}

func TestStopEndpoint_Conflict(t *testing.T) {
	base := startTestServer(t, &fakeController{stopErr: processor.ErrNotRunning})

	if code, _ := doReq(t, http.MethodPost, base+"/api/stream/stop"); code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
}

func TestStopEndpoint(t *testing.T) {
	ctl := &fakeController{}
	base := startTestServer(t, ctl)

	if code, _ := doReq(t, http.MethodPost, base+"/api/stream/stop"); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if _, stopped, _ := ctl.counts(); stopped != 1 {
		t.Fatalf("controller.Stop called %d times", stopped)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	base := startTestServer(t, &fakeController{})

	code, body := doReq(t, http.MethodGet, base+"/api/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	status, ok := body["status"].(map[string]any)
	if !ok || status["state"] != "running" {
		t.Fatalf("status block missing: %v", body)
	}
	m, ok := body["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics block missing: %v", body)
	}
	counters := m["counters"].(map[string]any)
	if counters["messages_processed"].(float64) != 7 {
		t.Fatalf("counters: %v", counters)
	}
}

func TestFlushEndpoint(t *testing.T) {
	ctl := &fakeController{}
	base := startTestServer(t, ctl)

	if code, _ := doReq(t, http.MethodPost, base+"/api/metrics/flush"); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if _, _, flushed := ctl.counts(); flushed != 1 {
		t.Fatalf("FlushMetrics called %d times", flushed)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ctl := &fakeController{healthy: true}
	base := startTestServer(t, ctl)

	if code, _ := doReq(t, http.MethodGet, base+"/api/health"); code != http.StatusOK {
		t.Fatalf("healthy status = %d, want 200", code)
	}

	ctl.setHealthy(false)
	if code, _ := doReq(t, http.MethodGet, base+"/api/health"); code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d, want 503", code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	base := startTestServer(t, &fakeController{})

	req, _ := http.NewRequest(http.MethodGet, base+"/api/stream/start", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
