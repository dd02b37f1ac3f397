// Package metrics collects run metrics and writes them in the node_exporter
// textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeDry    = "dry"
)

// Metrics holds the collectors for one run. All methods are nil-safe.
type Metrics struct {
	registry *prometheus.Registry

	// Tool invocations by tool ("case", "run", "start") and outcome.
	ToolInvocations *prometheus.CounterVec

	// Wall time of tool invocations.
	ToolDuration *prometheus.HistogramVec

	// Fragment files written.
	FragmentsWritten prometheus.Counter

	// Cases registered by source ("definition", "subtag", "matrix").
	CasesRegistered *prometheus.CounterVec

	// Binary archives unpacked.
	ArchivesExtracted prometheus.Counter
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ttr_tool_invocations_total",
			Help: "External tool invocations by subcommand and outcome",
		}, []string{"tool", "outcome"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ttr_tool_duration_seconds",
			Help:    "Duration of external tool invocations",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"tool"}),

		FragmentsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttr_fragments_written_total",
			Help: "Case fragment files written",
		}),

		CasesRegistered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ttr_cases_registered_total",
			Help: "Cases registered by source",
		}, []string{"source"}),

		ArchivesExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ttr_archives_extracted_total",
			Help: "Binary archives unpacked",
		}),
	}
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(tool, outcome).Inc()
	if outcome != OutcomeDry {
		m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// AddFragments counts written fragment files.
func (m *Metrics) AddFragments(n int) {
	if m != nil {
		m.FragmentsWritten.Add(float64(n))
	}
}

// AddCases counts registered cases from source.
func (m *Metrics) AddCases(source string, n int) {
	if m != nil {
		m.CasesRegistered.WithLabelValues(source).Add(float64(n))
	}
}

// IncArchives counts one unpacked archive.
func (m *Metrics) IncArchives() {
	if m != nil {
		m.ArchivesExtracted.Inc()
	}
}

// Gatherer exposes the registry for tests and exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes all metrics to path atomically. An empty path is a
// no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
