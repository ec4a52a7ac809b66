package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Paintersrp/procwatch/internal/watchdog"
)

var (
	registry = prometheus.NewRegistry()

	watchedProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwatch",
		Name:      "watched_processes",
		Help:      "Number of processes currently under watch.",
	})

	heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwatch",
		Name:      "heartbeats_total",
		Help:      "Heartbeats received per process, explicit or read-triggered.",
	}, []string{"process"})

	kills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwatch",
		Name:      "kills_total",
		Help:      "Processes killed for exceeding their deadline.",
	}, []string{"process"})

	killFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwatch",
		Name:      "kill_failures_total",
		Help:      "Kill attempts that returned an error.",
	}, []string{"process"})

	exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwatch",
		Name:      "exits_total",
		Help:      "Processes that exited on their own while watched.",
	}, []string{"process"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procwatch",
		Name:      "build_info",
		Help:      "Build metadata for the running procwatch binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(watchedProcesses, heartbeats, kills, killFailures, exits, buildInfo)
}

// Registry returns the Prometheus registry containing all procwatch metrics.
func Registry() *prometheus.Registry {
	return registry
}

func label(process string) string {
	if process == "" {
		return "unknown"
	}
	return process
}

// Observer returns a watchdog event hook that records events under the name
// returned by nameOf.
func Observer(nameOf func(*watchdog.WatchedProcess) string) func(watchdog.Event) {
	return func(evt watchdog.Event) {
		name := ""
		if evt.Process != nil && nameOf != nil {
			name = nameOf(evt.Process)
		}
		switch evt.Type {
		case watchdog.EventWatched:
			watchedProcesses.Inc()
		case watchdog.EventUnwatched:
			watchedProcesses.Dec()
		case watchdog.EventHeartBeat:
			heartbeats.WithLabelValues(label(name)).Inc()
		case watchdog.EventExited:
			watchedProcesses.Dec()
			exits.WithLabelValues(label(name)).Inc()
		case watchdog.EventExpired:
			watchedProcesses.Dec()
			kills.WithLabelValues(label(name)).Inc()
		case watchdog.EventKillFailed:
			killFailures.WithLabelValues(label(name)).Inc()
		}
	}
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}

// ResetProcess drops the per-process series for a name.
func ResetProcess(process string) {
	if process == "" {
		return
	}
	heartbeats.DeleteLabelValues(process)
	kills.DeleteLabelValues(process)
	killFailures.DeleteLabelValues(process)
	exits.DeleteLabelValues(process)
}
