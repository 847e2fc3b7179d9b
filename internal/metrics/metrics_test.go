package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
	"github.com/hazz-dev/pingbot/internal/metrics"
)

func status(name string, up bool) checker.Status {
	return checker.Status{
		Service: config.Service{Name: name, Type: config.TypeHTTP},
		Up:      up,
		Latency: 20 * time.Millisecond,
	}
}

func TestObserveStatus(t *testing.T) {
	m := metrics.New()
	m.ObserveStatus(status("api", true))
	m.ObserveStatus(status("db", false))
	m.ObserveUnsupported()
	m.ObservePanic()
	m.ObserveDelivery(true)
	m.ObserveDelivery(false)

	expected := `
# HELP pingbot_checks_total Completed service checks by type and outcome
# TYPE pingbot_checks_total counter
pingbot_checks_total{status="DOWN",type="http"} 1
pingbot_checks_total{status="UP",type="http"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pingbot_checks_total"); err != nil {
		t.Error(err)
	}

	expected = `
# HELP pingbot_service_up Whether the service was reachable in the last run (1) or not (0)
# TYPE pingbot_service_up gauge
pingbot_service_up{service="api"} 1
pingbot_service_up{service="db"} 0
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pingbot_service_up"); err != nil {
		t.Error(err)
	}

	n, err := testutil.GatherAndCount(m.Registry(), "pingbot_deliveries_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 delivery series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.ObserveStatus(status("api", true))

	path := filepath.Join(t.TempDir(), "pingbot.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `pingbot_service_up{service="api"} 1`) {
		t.Errorf("textfile missing service gauge:\n%s", data)
	}
}

func TestPush(t *testing.T) {
	var calls int32
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.New()
	m.ObserveStatus(status("api", true))
	if err := m.Push(context.Background(), srv.URL, "pingbot"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 push, got %d", calls)
	}
	if gotPath != "/metrics/job/pingbot" {
		t.Errorf("unexpected push path %q", gotPath)
	}
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := metrics.New().Push(context.Background(), srv.URL, "pingbot"); err == nil {
		t.Error("expected error from failing gateway")
	}
}
