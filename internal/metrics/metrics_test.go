package metrics_test

import (
	"bufio"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/procwatch/internal/metrics"
	"github.com/Paintersrp/procwatch/internal/watchdog"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesMetrics(t *testing.T) {
	name := "metrics_test_process"
	t.Cleanup(func() { metrics.ResetProcess(name) })

	metrics.EmitBuildInfo()

	observe := metrics.Observer(func(*watchdog.WatchedProcess) string { return name })
	wp := &watchdog.WatchedProcess{}
	observe(watchdog.Event{Type: watchdog.EventHeartBeat, Process: wp})
	observe(watchdog.Event{Type: watchdog.EventHeartBeat, Process: wp})
	observe(watchdog.Event{Type: watchdog.EventWatched, Process: wp})
	observe(watchdog.Event{Type: watchdog.EventWatched, Process: wp})
	observe(watchdog.Event{Type: watchdog.EventExpired, Process: wp})
	observe(watchdog.Event{Type: watchdog.EventIdle})

	body := scrape(t)

	heartbeatLine := fmt.Sprintf("procwatch_heartbeats_total{process=\"%s\"} 2", name)
	if !strings.Contains(body, heartbeatLine) {
		t.Fatalf("expected heartbeat metric line %q in body:\n%s", heartbeatLine, body)
	}

	killLine := fmt.Sprintf("procwatch_kills_total{process=\"%s\"} 1", name)
	if !strings.Contains(body, killLine) {
		t.Fatalf("expected kill metric line %q in body:\n%s", killLine, body)
	}

	if !strings.Contains(body, "procwatch_watched_processes 1") {
		t.Fatalf("expected one watched process in body:\n%s", body)
	}

	if !strings.Contains(body, "procwatch_build_info{") {
		t.Fatalf("expected build info metric in body:\n%s", body)
	}
	if !strings.Contains(body, "go_version=") {
		t.Fatalf("expected go_version label on build info metric:\n%s", body)
	}

	// Leave the gauge where we found it.
	observe(watchdog.Event{Type: watchdog.EventUnwatched, Process: wp})
}

func TestResetProcessDropsSeries(t *testing.T) {
	name := "metrics_reset_process"
	observe := metrics.Observer(func(*watchdog.WatchedProcess) string { return name })
	observe(watchdog.Event{Type: watchdog.EventHeartBeat, Process: &watchdog.WatchedProcess{}})
	metrics.ResetProcess(name)

	if body := scrape(t); strings.Contains(body, name) {
		t.Fatalf("expected %s series to be removed:\n%s", name, body)
	}
}

type idleProcess struct{}

func (*idleProcess) Stdout() io.Reader      { return strings.NewReader("") }
func (*idleProcess) Stderr() io.Reader      { return strings.NewReader("") }
func (*idleProcess) Stdin() io.Writer       { return io.Discard }
func (*idleProcess) Wait() (int, error)     { return 0, nil }
func (*idleProcess) ExitCode() (int, error) { return 0, watchdog.ErrNotExited }
func (*idleProcess) Kill() error            { return nil }

func watchedGauge(t *testing.T) float64 {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(scrape(t)))
	for scanner.Scan() {
		value, ok := strings.CutPrefix(scanner.Text(), "procwatch_watched_processes ")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			t.Fatalf("parse gauge value %q: %v", value, err)
		}
		return f
	}
	t.Fatalf("procwatch_watched_processes missing from scrape")
	return 0
}

func TestWatchedGaugeSurvivesRewatch(t *testing.T) {
	name := "metrics_rewatch_process"
	t.Cleanup(func() { metrics.ResetProcess(name) })

	dog := watchdog.New(watchdog.WithEventHook(metrics.Observer(func(*watchdog.WatchedProcess) string { return name })))
	p := &idleProcess{}
	before := watchedGauge(t)

	dog.Watch(p, time.Hour)
	dog.Watch(p, time.Hour)
	if got := watchedGauge(t) - before; got != 1 {
		t.Fatalf("expected gauge to grow by 1 after re-watch, got %v", got)
	}

	dog.Unwatch(p)
	if got := watchedGauge(t) - before; got != 0 {
		t.Fatalf("expected gauge back at its starting value, got %v", got)
	}
}
