package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/ttr/internal/builder"
	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/metrics"
	"github.com/zjrosen/ttr/internal/mocks"
	"github.com/zjrosen/ttr/internal/orchestrator"
	"github.com/zjrosen/ttr/internal/registry"
)

type staticCommands []builder.Command

func (s staticCommands) Commands() []builder.Command { return s }

func newRegistry(t *testing.T, cases ...*registry.Case) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, c := range cases {
		require.NoError(t, reg.Add(c))
	}
	return reg
}

func commandFor(dir, name string) builder.Command {
	fragment := filepath.Join(dir, "modifs_"+name+".toml")
	return builder.Command{
		Case:     name,
		Argv:     []string{"case", "/cfg/" + name, fragment, "-o", dir},
		Fragment: fragment,
	}
}

// produce returns a tool behavior that writes an artifact and reports it.
func produce(dir, configName, domain string) func(context.Context, []string) (orchestrator.Output, error) {
	return func(_ context.Context, _ []string) (orchestrator.Output, error) {
		path := filepath.Join(dir, configName+".toml")
		body := "[domain]\nname = \"" + domain + "\"\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			return orchestrator.Output{}, err
		}
		return orchestrator.Output{Stdout: "Save config " + path + "\n"}, nil
	}
}

func newStore(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfigure_AnnotatesCasesAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"}, &registry.Case{Name: "B"})
	cfg := mocks.NewMockToolRunner(t)
	cmds := staticCommands{commandFor(dir, "A"), commandFor(dir, "B")}

	cfg.EXPECT().Run(mock.Anything, append(cmds[0].Argv, "--start-suite")).
		RunAndReturn(produce(dir, "A_cfg", "DRAMMEN")).Once()
	cfg.EXPECT().Run(mock.Anything, append(cmds[1].Argv, "--start-suite")).
		RunAndReturn(produce(dir, "B_cfg", "NORWAY")).Once()

	store := newStore(t)
	o := orchestrator.New(reg, cmds, cfg, nil, orchestrator.Options{
		TestDir:   dir,
		Discovery: orchestrator.DiscoverReport,
		RunID:     "run-1",
	}, orchestrator.WithRecorder(store), orchestrator.WithMetrics(metrics.New()))

	results, err := o.Configure(context.Background(), true, []string{"--start-suite"})
	require.NoError(t, err)
	require.Equal(t, map[string]orchestrator.HostResult{
		"A": {ConfigName: "A_cfg", DomainName: "DRAMMEN"},
		"B": {ConfigName: "B_cfg", DomainName: "NORWAY"},
	}, results)

	a, _ := reg.Get("A")
	require.Equal(t, "A_cfg", a.ConfigName)
	require.Equal(t, "DRAMMEN", a.DomainName)

	// Second pass finds everything configured and invokes nothing.
	results, err = o.Configure(context.Background(), true, []string{"--start-suite"})
	require.NoError(t, err)
	require.Empty(t, results)

	entries, err := store.List(ledger.Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "B", entries[0].Case)
	require.Equal(t, "NORWAY", entries[0].DomainName)
	require.Equal(t, ledger.PhaseConfigure, entries[0].Phase)
}

func TestConfigure_WithoutPropagateReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).RunAndReturn(produce(dir, "A_cfg", "D")).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{TestDir: dir})
	results, err := o.Configure(context.Background(), false, nil)
	require.NoError(t, err)
	require.Empty(t, results)

	a, _ := reg.Get("A")
	require.True(t, a.Configured())
}

func TestConfigure_MtimeDiscovery(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, []string) (orchestrator.Output, error) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "modifs_A.toml"), []byte("x = 1\n"), 0o600))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "SILENT.toml"), []byte("[domain]\nname = \"Q\"\n"), 0o600))
			return orchestrator.Output{Stdout: "no report\n"}, nil
		}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{
		TestDir:   dir,
		Discovery: orchestrator.DiscoverMtime,
	})
	results, err := o.Configure(context.Background(), true, nil)
	require.NoError(t, err)
	require.Equal(t, orchestrator.HostResult{ConfigName: "SILENT", DomainName: "Q"}, results["A"])
}

func TestConfigure_WatchDiscovery(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, []string) (orchestrator.Output, error) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "WATCHED.toml"), []byte("[domain]\nname = \"W\"\n"), 0o600))
			return orchestrator.Output{}, nil
		}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{
		TestDir:   dir,
		Discovery: orchestrator.DiscoverWatch,
		Settle:    200 * time.Millisecond,
	})
	results, err := o.Configure(context.Background(), true, nil)
	require.NoError(t, err)
	require.Equal(t, "WATCHED", results["A"].ConfigName)
}

func TestConfigure_AutoFallsBackToNewestFile(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, []string) (orchestrator.Output, error) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "AUTO.toml"), []byte("[domain]\nname = \"Z\"\n"), 0o600))
			return orchestrator.Output{}, nil
		}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{
		TestDir: dir,
		Flags:   flags.New(map[string]bool{flags.FlagArtifactWatch: true}),
	})
	results, err := o.Configure(context.Background(), true, nil)
	require.NoError(t, err)
	require.Equal(t, "AUTO", results["A"].ConfigName)
}

func TestConfigure_ToolFailureSurfacesOutput(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	toolErr := &orchestrator.ToolError{
		Argv:     []string{"deode", "case"},
		ExitCode: 2,
		Stderr:   "KeyError: domain",
		Err:      errors.New("exit status 2"),
	}
	cfg.EXPECT().Run(mock.Anything, mock.Anything).Return(orchestrator.Output{Stderr: "KeyError: domain"}, toolErr).Once()

	store := newStore(t)
	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil,
		orchestrator.Options{TestDir: dir, RunID: "r"}, orchestrator.WithRecorder(store))
	_, err := o.Configure(context.Background(), true, nil)
	require.ErrorIs(t, err, orchestrator.ErrExternalTool)
	require.ErrorContains(t, err, "KeyError: domain")

	a, _ := reg.Get("A")
	require.False(t, a.Configured())

	entries, err := store.List(ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.OutcomeFailed, entries[0].Outcome)
	require.Equal(t, 2, entries[0].ExitCode)
}

func TestConfigure_ArtifactWithoutDomainIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, []string) (orchestrator.Output, error) {
			path := filepath.Join(dir, "BROKEN.toml")
			require.NoError(t, os.WriteFile(path, []byte("[general]\n"), 0o600))
			return orchestrator.Output{Stdout: "Save config " + path}, nil
		}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{TestDir: dir})
	_, err := o.Configure(context.Background(), true, nil)
	require.ErrorIs(t, err, registry.ErrConfiguration)
}

func TestConfigure_UnknownCommandCase(t *testing.T) {
	dir := t.TempDir()
	o := orchestrator.New(registry.New(), staticCommands{commandFor(dir, "ghost")}, mocks.NewMockToolRunner(t), nil,
		orchestrator.Options{TestDir: dir})
	_, err := o.Configure(context.Background(), true, nil)
	require.ErrorIs(t, err, registry.ErrLookup)
}

func TestConfigure_TimeoutAppliesDeadline(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, &registry.Case{Name: "A"})
	cfg := mocks.NewMockToolRunner(t)
	cfg.EXPECT().Run(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, _ []string) (orchestrator.Output, error) {
			_, ok := ctx.Deadline()
			require.True(t, ok)
			<-ctx.Done()
			return orchestrator.Output{}, &orchestrator.ToolError{Argv: []string{"deode"}, ExitCode: -1, Err: ctx.Err()}
		}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, cfg, nil, orchestrator.Options{
		TestDir: dir,
		Timeout: 20 * time.Millisecond,
	})
	_, err := o.Configure(context.Background(), true, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdateHostnames(t *testing.T) {
	reg := newRegistry(t,
		&registry.Case{Name: "baar"},
		&registry.Case{Name: "foo", Host: "baar"},
		&registry.Case{Name: "lone"},
	)
	o := orchestrator.New(reg, staticCommands{}, nil, nil, orchestrator.Options{})

	o.UpdateHostnames(map[string]orchestrator.HostResult{"baar": {ConfigName: "x", DomainName: "y"}})

	foo, _ := reg.Get("foo")
	require.Equal(t, "x", foo.Hostname)
	require.Equal(t, "y", foo.HostDomain)
	lone, _ := reg.Get("lone")
	require.Empty(t, lone.Hostname)
}

func configured(name, configName string, tasks ...string) *registry.Case {
	return &registry.Case{Name: name, ConfigName: configName, DomainName: "D", Tasks: tasks}
}

func TestStart_SuiteMode(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, configured("A", "A_cfg"), &registry.Case{Name: "B"})
	run := mocks.NewMockToolRunner(t)
	run.EXPECT().Run(mock.Anything, []string{
		"start", "suite",
		"--config-file", filepath.Join(dir, "A_cfg.toml"),
		"-f", filepath.Join(dir, "A_cfg.def"),
		"-k",
	}).Return(orchestrator.Output{}, nil).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A"), commandFor(dir, "B")}, nil, run,
		orchestrator.Options{TestDir: dir})
	require.NoError(t, o.Start(context.Background()))
}

func TestStart_SkipsConfiguredHostOutsideSelection(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, configured("hostA", "hostA_cfg"), configured("A", "A_cfg"))
	run := mocks.NewMockToolRunner(t)
	run.EXPECT().Run(mock.Anything, mock.MatchedBy(func(argv []string) bool {
		return argv[3] == filepath.Join(dir, "A_cfg.toml")
	})).Return(orchestrator.Output{}, nil).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "hostA"), commandFor(dir, "A")}, nil, run,
		orchestrator.Options{TestDir: dir, Selection: []string{"A"}})
	require.NoError(t, o.Start(context.Background()))
}

func TestStart_TaskMode(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, configured("A", "A_cfg", "Forecast", "Pgd"))
	run := mocks.NewMockToolRunner(t)
	for _, task := range []string{"Forecast", "Pgd"} {
		run.EXPECT().Run(mock.Anything, []string{
			"run",
			"--config-file", filepath.Join(dir, "A_cfg.toml"),
			"--task", task,
			"--job", filepath.Join(dir, task+".A_cfg.job"),
			"--output", filepath.Join(dir, task+".A_cfg.log"),
		}).Return(orchestrator.Output{}, nil).Once()
	}

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, nil, run,
		orchestrator.Options{TestDir: dir, Mode: definition.ModeTask})
	require.NoError(t, o.Start(context.Background()))
}

func TestStart_DryRecordsWithoutRunning(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, configured("A", "A_cfg"))
	run := mocks.NewMockToolRunner(t)
	store := newStore(t)

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A")}, nil, run,
		orchestrator.Options{TestDir: dir, Dry: true, RunID: "dry-1"}, orchestrator.WithRecorder(store))
	require.NoError(t, o.Start(context.Background()))

	entries, err := store.List(ledger.Filter{RunID: "dry-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.OutcomeDry, entries[0].Outcome)
	require.Equal(t, ledger.PhaseRun, entries[0].Phase)
	require.Equal(t, "start", entries[0].Argv[0])
}

func TestStart_RunFailureStops(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, configured("A", "A_cfg"), configured("B", "B_cfg"))
	run := mocks.NewMockToolRunner(t)
	run.EXPECT().Run(mock.Anything, mock.Anything).
		Return(orchestrator.Output{}, &orchestrator.ToolError{Argv: []string{"deode"}, ExitCode: 1, Err: errors.New("exit status 1")}).Once()

	o := orchestrator.New(reg, staticCommands{commandFor(dir, "A"), commandFor(dir, "B")}, nil, run,
		orchestrator.Options{TestDir: dir})
	err := o.Start(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrExternalTool)
}
