package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveTool("case", OutcomeOK, 2*time.Second)
	m.ObserveTool("case", OutcomeOK, time.Second)
	m.ObserveTool("start", OutcomeDry, 0)
	m.AddFragments(3)
	m.AddCases("subtag", 2)
	m.IncArchives()

	require.Equal(t, 2.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("case", OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("start", OutcomeDry)))
	require.Equal(t, 3.0, testutil.ToFloat64(m.FragmentsWritten))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CasesRegistered.WithLabelValues("subtag")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ArchivesExtracted))
	require.Equal(t, 1, testutil.CollectAndCount(m.ToolDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTool("case", OutcomeFailed, time.Second)
	m.AddFragments(1)
	m.AddCases("matrix", 1)
	m.IncArchives()
	require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	require.NotNil(t, m.Gatherer())
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.AddFragments(1)
	require.Equal(t, 0.0, testutil.ToFloat64(b.FragmentsWritten))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.AddFragments(4)
	path := filepath.Join(t.TempDir(), "ttr.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "ttr_fragments_written_total 4")
	require.NoError(t, m.WriteTextfile(""))
}
