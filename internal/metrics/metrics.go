// Package metrics provides Prometheus metrics for wgconf runs.
//
// wgconf is a short-lived command, so metrics are not served over HTTP.
// They are written to a node_exporter textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/wgconf/wgconf/internal/diag"
)

// RepoMetrics counts what the configuration repository did.
type RepoMetrics struct {
	registry *prometheus.Registry

	Imports        prometheus.Counter
	Exports        prometheus.Counter
	ExportFailures prometheus.Counter
	Backups        prometheus.Counter
	FilesWritten   prometheus.Counter
	Diagnostics    *prometheus.CounterVec // labels: severity
	Peers          prometheus.Gauge
	LastExport     prometheus.Gauge // unix seconds
}

// New registers the repository metrics on reg.
func New(reg *prometheus.Registry) *RepoMetrics {
	f := promauto.With(reg)
	return &RepoMetrics{
		registry: reg,
		Imports: f.NewCounter(prometheus.CounterOpts{
			Name: "wgconf_imports_total",
			Help: "Configuration directories read",
		}),
		Exports: f.NewCounter(prometheus.CounterOpts{
			Name: "wgconf_exports_total",
			Help: "Successful writes of the configuration directory",
		}),
		ExportFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "wgconf_export_failures_total",
			Help: "Writes of the configuration directory that failed",
		}),
		Backups: f.NewCounter(prometheus.CounterOpts{
			Name: "wgconf_backups_total",
			Help: "Backup rotations performed before a write",
		}),
		FilesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "wgconf_files_written_total",
			Help: "Configuration files written",
		}),
		Diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wgconf_diagnostics_total",
			Help: "Diagnostics reported while parsing, by severity",
		}, []string{"severity"}),
		Peers: f.NewGauge(prometheus.GaugeOpts{
			Name: "wgconf_peers",
			Help: "Peers in the configuration last read or written",
		}),
		LastExport: f.NewGauge(prometheus.GaugeOpts{
			Name: "wgconf_last_export_timestamp_seconds",
			Help: "Unix time of the last successful write",
		}),
	}
}

// Report counts a diagnostic. RepoMetrics is a diag.Sink.
func (m *RepoMetrics) Report(d diag.Diagnostic) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(d.Severity.String()).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically so node_exporter never reads a partial file.
func (m *RepoMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
