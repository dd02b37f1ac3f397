package ledger

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	}
}

func TestNewDB_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(Entry{RunID: "r1", Phase: PhaseConfigure, Outcome: OutcomeOK})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStore_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.Record(Entry{
		RunID:      "run-1",
		Tag:        "t1_",
		Case:       "A",
		Phase:      PhaseConfigure,
		Argv:       []string{"case", "/cfg/A", "-o", "out"},
		ConfigName: "A_cfg",
		DomainName: "DRAMMEN",
		Outcome:    OutcomeOK,
		Duration:   1500 * time.Millisecond,
		CreatedAt:  base,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = s.Record(Entry{RunID: "run-2", Case: "B", Phase: PhaseRun, Outcome: OutcomeFailed, ExitCode: 2, Message: "boom", CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	all, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "B", all[0].Case)
	require.Equal(t, []string{}, all[0].Argv)
	require.Equal(t, 2, all[0].ExitCode)

	first := all[1]
	require.Equal(t, id, first.ID)
	require.Equal(t, []string{"case", "/cfg/A", "-o", "out"}, first.Argv)
	require.Equal(t, "DRAMMEN", first.DomainName)
	require.Equal(t, 1500*time.Millisecond, first.Duration)
	require.True(t, base.Equal(first.CreatedAt))
}

func TestStore_ListFilters(t *testing.T) {
	s := newTestStore(t)
	for _, e := range []Entry{
		{RunID: "r1", Case: "A", Phase: PhaseConfigure, Outcome: OutcomeOK},
		{RunID: "r1", Case: "B", Phase: PhaseConfigure, Outcome: OutcomeOK},
		{RunID: "r2", Case: "A", Phase: PhaseRun, Outcome: OutcomeDry},
	} {
		_, err := s.Record(e)
		require.NoError(t, err)
	}

	byRun, err := s.List(Filter{RunID: "r1"})
	require.NoError(t, err)
	require.Len(t, byRun, 2)

	byCase, err := s.List(Filter{Case: "A"})
	require.NoError(t, err)
	require.Len(t, byCase, 2)

	limited, err := s.List(Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "r2", limited[0].RunID)
}
