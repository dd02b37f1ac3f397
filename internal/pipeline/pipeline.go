// Package pipeline wires definition loading, selection, matrix expansion,
// fragment building and tool orchestration into the ttr control flow:
//
//	load → select → (expand) → prepare hosts
//	  → build hosts → configure hosts → propagate host identity
//	  → build selection → configure → start
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/ttr/internal/builder"
	"github.com/zjrosen/ttr/internal/config"
	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/matrix"
	"github.com/zjrosen/ttr/internal/metrics"
	"github.com/zjrosen/ttr/internal/orchestrator"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/selection"
	"github.com/zjrosen/ttr/internal/tracing"
)

// DefaultPyproject is where the run tag is read from when the definition
// does not set one.
const DefaultPyproject = "pyproject.toml"

// Options configures a Pipeline.
type Options struct {
	DefinitionPath string
	PyprojectPath  string
	// Dry is ORed with general.dry from the definition.
	Dry      bool
	Settings config.Config
	User     string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTools sets the configuration and run tool runners. Without it both
// execute the executables named in the settings.
func WithTools(configTool, runTool orchestrator.ToolRunner) Option {
	return func(p *Pipeline) {
		p.configTool = configTool
		p.runTool = runTool
	}
}

// WithTracer sets the tracer for phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRecorder sets the run ledger.
func WithRecorder(r orchestrator.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// Pipeline holds one loaded definition and drives it.
type Pipeline struct {
	def       *definition.Definition
	reg       *registry.Registry
	selection []string
	tag       string
	testDir   string
	dry       bool
	runID     string
	flags     *flags.Registry

	builder *builder.Builder
	orch    *orchestrator.Orchestrator

	configTool orchestrator.ToolRunner
	runTool    orchestrator.ToolRunner
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	recorder   orchestrator.Recorder
}

// New loads the definition and resolves the working selection. A digit
// leading tag fails here, before anything is written.
func New(ctx context.Context, opts Options, options ...Option) (p *Pipeline, err error) {
	p = &Pipeline{runID: uuid.NewString()}
	for _, opt := range options {
		opt(p)
	}
	p.tracer = tracing.OrNoop(p.tracer)

	_, span := tracing.Start(ctx, p.tracer, tracing.SpanPrepare,
		attribute.String(tracing.AttrRunID, p.runID),
	)
	defer func() { tracing.End(span, err) }()

	pyproject := opts.PyprojectPath
	if pyproject == "" {
		pyproject = DefaultPyproject
	}
	def, err := definition.Load(opts.DefinitionPath, pyproject)
	if err != nil {
		return nil, err
	}
	p.def = def
	p.tag = def.General.Tag
	p.testDir = def.ResolvedTestDir(def.General.Tag)
	p.dry = opts.Dry || def.General.Dry
	p.flags = flags.New(opts.Settings.Flags)

	p.reg, err = registry.FromDefinition(def)
	if err != nil {
		return nil, err
	}
	p.metrics.AddCases("definition", p.reg.Len())

	before := p.reg.Len()
	p.selection, err = selection.Resolve(p.reg, def.General)
	if err != nil {
		return nil, err
	}
	p.metrics.AddCases("subtag", p.reg.Len()-before)

	if def.IAL != nil && def.IAL.Active {
		before = p.reg.Len()
		res, err := matrix.NewExpander(opts.User).Expand(p.reg, def.IAL)
		if err != nil {
			return nil, err
		}
		p.tag = res.Tag
		p.selection = res.Selection
		p.metrics.AddCases("matrix", p.reg.Len()-before)
	}

	log.Info(log.CatConfig, "Using config file", "path", opts.DefinitionPath)
	log.Info(log.CatConfig, "run", "tag", p.tag, "test_dir", p.testDir, "dry", p.dry, "run_id", p.runID)
	span.SetAttributes(
		attribute.String(tracing.AttrTag, p.tag),
		attribute.Int(tracing.AttrCaseCount, len(p.selection)),
	)

	p.wire(opts)
	return p, nil
}

func (p *Pipeline) wire(opts Options) {
	s := opts.Settings
	if p.configTool == nil {
		p.configTool = orchestrator.NewExecRunner(orDefault(s.Tool.ConfigExecutable, "deode"))
	}
	if p.runTool == nil {
		p.runTool = orchestrator.NewExecRunner(orDefault(s.Tool.RunExecutable, "deode"))
	}

	p.builder = builder.New(p.reg, p.selection, builder.Options{
		TestDir:           p.testDir,
		ConfigurationsDir: orDefault(s.Tool.ConfigurationsDir, config.DefaultConfigurationsDir),
		Tag:               p.tag,
		Extra:             p.def.General.Extra,
		GlobalModifs:      p.def.Modifs,
		Flags:             p.flags,
	})

	// Settings were validated on load; an unknown value falls back to auto.
	discovery, err := orchestrator.ParseDiscovery(s.Tool.ArtifactDiscovery)
	if err != nil {
		log.Warn(log.CatConfig, "ignoring artifact discovery setting", "error", err)
		discovery = orchestrator.DiscoverAuto
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithTracer(p.tracer),
		orchestrator.WithMetrics(p.metrics),
	}
	if p.recorder != nil {
		orchOpts = append(orchOpts, orchestrator.WithRecorder(p.recorder))
	}
	p.orch = orchestrator.New(p.reg, p.builder, p.configTool, p.runTool, orchestrator.Options{
		TestDir:         p.testDir,
		Mode:            p.def.General.Mode,
		Dry:             p.dry,
		Discovery:       discovery,
		Timeout:         s.Tool.Timeout,
		Flags:           p.flags,
		DefaultCompiler: s.Host.DefaultCompiler,
		User:            opts.User,
		RunID:           p.runID,
		Tag:             p.tag,
		Selection:       append([]string{}, p.selection...),
	}, orchOpts...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Registry returns the case registry.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Selection returns the working selection.
func (p *Pipeline) Selection() []string { return append([]string(nil), p.selection...) }

// Tag returns the run tag used in macros.
func (p *Pipeline) Tag() string { return p.tag }

// TestDir returns the output directory.
func (p *Pipeline) TestDir() string { return p.testDir }

// RunID identifies this invocation in traces and the ledger.
func (p *Pipeline) RunID() string { return p.runID }

// Dry reports whether runs and extraction are only logged.
func (p *Pipeline) Dry() bool { return p.dry }

// Flags returns the feature flags.
func (p *Pipeline) Flags() *flags.Registry { return p.flags }

// Commands returns the pending configuration commands.
func (p *Pipeline) Commands() []builder.Command { return p.builder.Commands() }

// Prepare returns the host of every selected case that has one, in selection
// order. A selected name missing from the registry is a lookup failure.
func (p *Pipeline) Prepare() ([]string, error) {
	hosts := []string{}
	for _, name := range p.selection {
		c, err := p.reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		if c.Host == "" {
			continue
		}
		if _, err := p.reg.Lookup(c.Host); err != nil {
			var lookupErr *registry.LookupError
			if errors.As(err, &lookupErr) {
				lookupErr.From = name
			}
			return nil, err
		}
		hosts = append(hosts, c.Host)
	}
	return hosts, nil
}

// Execute runs the two-phase flow: hosts are built and configured first so
// their identity can be substituted into dependents, then the whole
// selection is built. Unless skipRun is set the selection is then configured
// and started.
func (p *Pipeline) Execute(ctx context.Context, skipRun bool) (err error) {
	ctx, span := tracing.Start(ctx, p.tracer, tracing.SpanRun,
		attribute.String(tracing.AttrRunID, p.runID),
		attribute.String(tracing.AttrTag, p.tag),
		attribute.Int(tracing.AttrCaseCount, len(p.selection)),
		attribute.Bool(tracing.AttrDry, p.dry),
	)
	defer func() { tracing.End(span, err) }()

	hosts, err := p.Prepare()
	if err != nil {
		return err
	}

	if err := p.build(ctx, hosts); err != nil {
		return err
	}
	results, err := p.orch.Configure(ctx, true, nil)
	if err != nil {
		return fmt.Errorf("configuring host cases: %w", err)
	}
	p.orch.UpdateHostnames(results)

	if err := p.build(ctx, nil); err != nil {
		return err
	}

	if skipRun {
		log.Info(log.CatRun, "fragments written, skipping configure and run", "dir", p.testDir)
		return nil
	}

	if _, err := p.orch.Configure(ctx, false, nil); err != nil {
		return fmt.Errorf("configuring cases: %w", err)
	}
	return p.orch.Start(ctx)
}

func (p *Pipeline) build(ctx context.Context, targets []string) (err error) {
	phase := "selection"
	if targets != nil {
		phase = "hosts"
	}
	ctx, span := tracing.Start(ctx, p.tracer, tracing.SpanBuild, attribute.String(tracing.AttrPhase, phase))
	defer func() { tracing.End(span, err) }()

	before := p.builder.Written()
	if err := p.builder.Materialize(ctx, targets); err != nil {
		return err
	}
	p.metrics.AddFragments(p.builder.Written() - before)
	return nil
}

// FetchBinaries unpacks the build archives named by the [ial] section.
func (p *Pipeline) FetchBinaries(ctx context.Context) error {
	return p.orch.FetchBinaries(ctx, p.def.IAL)
}
