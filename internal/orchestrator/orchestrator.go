// Package orchestrator drives the external configuration and run tools for
// materialized cases.
//
// Configuration is strictly sequential: one tool invocation at a time, each
// followed by artifact discovery and annotation of the case. A case whose
// ConfigName is set is never configured again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/ttr/internal/builder"
	"github.com/zjrosen/ttr/internal/definition"
	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/metrics"
	"github.com/zjrosen/ttr/internal/registry"
	"github.com/zjrosen/ttr/internal/tracing"
)

// DefaultSettle is how long the watch strategy waits for late file events
// after the tool exits.
const DefaultSettle = 100 * time.Millisecond

// HostResult is the identity of a configured case, handed to its dependents.
type HostResult struct {
	ConfigName string
	DomainName string
}

// CommandSource supplies pending configuration commands.
type CommandSource interface {
	Commands() []builder.Command
}

// Recorder persists invocation outcomes.
type Recorder interface {
	Record(e ledger.Entry) (int64, error)
}

// Options configures an Orchestrator.
type Options struct {
	TestDir string
	// Mode selects run dispatch: definition.ModeTask or suite (default).
	Mode string
	// Dry logs run and extraction steps without performing them.
	Dry       bool
	Discovery Discovery
	// Timeout bounds each tool invocation. Zero means no deadline.
	Timeout time.Duration
	Settle  time.Duration
	Flags   *flags.Registry

	// DefaultCompiler is assumed for archives without a compiler marker.
	DefaultCompiler string
	User            string

	RunID string
	Tag   string

	// Selection limits Start to these cases. Hosts pulled in only for
	// coupling are configured but never started. Nil starts every
	// configured case.
	Selection []string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer for phase and tool spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder sets the ledger recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator invokes the configuration and run tools.
type Orchestrator struct {
	reg        *registry.Registry
	commands   CommandSource
	configTool ToolRunner
	runTool    ToolRunner
	opts       Options

	tracer   trace.Tracer
	metrics  *metrics.Metrics
	recorder Recorder
}

// New creates an Orchestrator.
func New(reg *registry.Registry, commands CommandSource, configTool, runTool ToolRunner, opts Options, options ...Option) *Orchestrator {
	if opts.Discovery == "" {
		opts.Discovery = DiscoverAuto
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.DefaultCompiler == "" {
		opts.DefaultCompiler = "intel"
	}
	o := &Orchestrator{
		reg:        reg,
		commands:   commands,
		configTool: configTool,
		runTool:    runTool,
		opts:       opts,
	}
	for _, opt := range options {
		opt(o)
	}
	o.tracer = tracing.OrNoop(o.tracer)
	return o
}

// Configure runs the configuration tool for every pending command whose case
// is not configured yet, appending extraArgs. When propagate is set the
// results are returned keyed by case name.
func (o *Orchestrator) Configure(ctx context.Context, propagate bool, extraArgs []string) (map[string]HostResult, error) {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanConfigure, attribute.Bool("ttr.propagate", propagate))
	results, err := o.configure(ctx, propagate, extraArgs)
	tracing.End(span, err)
	return results, err
}

func (o *Orchestrator) configure(ctx context.Context, propagate bool, extraArgs []string) (map[string]HostResult, error) {
	results := make(map[string]HostResult)
	for _, cmd := range o.commands.Commands() {
		c, err := o.reg.Lookup(cmd.Case)
		if err != nil {
			return nil, err
		}
		if c.Configured() {
			log.Debug(log.CatTool, "already configured", "case", c.Name, "config", c.ConfigName)
			continue
		}

		argv := append(slices.Clone(cmd.Argv), extraArgs...)
		log.Info(log.CatTool, "configure case", "case", c.Name, "cmd", strings.Join(argv, " "))

		artifact, err := o.configureOne(ctx, c, argv)
		if err != nil {
			return nil, err
		}
		c.ConfigName = artifact.ConfigName
		c.DomainName = artifact.DomainName
		if propagate {
			results[c.Name] = HostResult{ConfigName: artifact.ConfigName, DomainName: artifact.DomainName}
		}
	}
	return results, nil
}

func (o *Orchestrator) configureOne(ctx context.Context, c *registry.Case, argv []string) (artifact Artifact, err error) {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanTool,
		attribute.String(tracing.AttrCase, c.Name),
		attribute.StringSlice(tracing.AttrToolArgs, argv),
		attribute.String(tracing.AttrArtifactMode, string(o.opts.Discovery)),
	)
	start := time.Now()
	defer func() {
		o.finish(c.Name, ledger.PhaseConfigure, "case", argv, start, err, func(e *ledger.Entry) {
			e.ConfigName, e.DomainName = artifact.ConfigName, artifact.DomainName
		})
		tracing.End(span, err)
	}()

	var watch *artifactWatch
	if o.watching() {
		watch, err = startWatch(o.opts.TestDir, o.opts.Settle)
		if err != nil {
			log.Warn(log.CatTool, "artifact watch unavailable", "error", err)
			watch = nil
			if o.opts.Discovery == DiscoverWatch {
				return Artifact{}, err
			}
		}
	}

	out, runErr := o.invoke(ctx, o.configTool, argv)
	var watched []string
	if watch != nil {
		watched = watch.stop()
	}
	if runErr != nil {
		return Artifact{}, runErr
	}

	path, err := o.locate(out, watched)
	if err != nil {
		return Artifact{}, &registry.ConfigurationError{Case: c.Name, Reason: fmt.Sprintf("locating generated config: %v", err)}
	}
	span.AddEvent(tracing.EventArtifactFound, trace.WithAttributes(attribute.String(tracing.AttrArtifactPath, path)))

	artifact, err = readArtifact(c.Name, path)
	if err != nil {
		return Artifact{}, err
	}
	log.Info(log.CatTool, "configured case", "case", c.Name, "config", artifact.ConfigName, "domain", artifact.DomainName)
	return artifact, nil
}

func (o *Orchestrator) watching() bool {
	switch o.opts.Discovery {
	case DiscoverWatch:
		return true
	case DiscoverAuto:
		return o.opts.Flags.Enabled(flags.FlagArtifactWatch)
	default:
		return false
	}
}

// locate finds the artifact per the discovery strategy.
func (o *Orchestrator) locate(out Output, watched []string) (string, error) {
	switch o.opts.Discovery {
	case DiscoverReport:
		return reportedArtifact(out, o.opts.TestDir)
	case DiscoverWatch:
		return latest(watched)
	case DiscoverMtime:
		return newestArtifact(o.opts.TestDir)
	}

	if path, err := reportedArtifact(out, o.opts.TestDir); err == nil {
		return path, nil
	}
	if path, err := latest(watched); err == nil {
		log.Debug(log.CatTool, "artifact from file events", "path", path)
		return path, nil
	}
	log.Warn(log.CatTool, "tool did not report its artifact, using newest file", "dir", o.opts.TestDir)
	return newestArtifact(o.opts.TestDir)
}

// invoke runs tool with the configured deadline.
func (o *Orchestrator) invoke(ctx context.Context, tool ToolRunner, argv []string) (Output, error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	return tool.Run(ctx, argv)
}

// finish records an invocation in metrics and the ledger.
func (o *Orchestrator) finish(caseName, phase, tool string, argv []string, start time.Time, err error, annotate func(*ledger.Entry)) {
	outcome := ledger.OutcomeOK
	if err != nil {
		outcome = ledger.OutcomeFailed
	}
	o.record(caseName, phase, tool, argv, outcome, time.Since(start), err, annotate)
}

func (o *Orchestrator) record(caseName, phase, tool string, argv []string, outcome string, d time.Duration, err error, annotate func(*ledger.Entry)) {
	o.metrics.ObserveTool(tool, outcome, d)
	if o.recorder == nil {
		return
	}

	e := ledger.Entry{
		RunID:    o.opts.RunID,
		Tag:      o.opts.Tag,
		Case:     caseName,
		Phase:    phase,
		Argv:     argv,
		Outcome:  outcome,
		Duration: d,
	}
	if err != nil {
		e.Message = err.Error()
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			e.ExitCode = toolErr.ExitCode
		}
	}
	if annotate != nil {
		annotate(&e)
	}
	if _, recErr := o.recorder.Record(e); recErr != nil {
		log.ErrorErr(log.CatLedger, "failed to record ledger entry", recErr, "case", caseName)
	}
}

// UpdateHostnames copies host identities onto the cases that reference them.
func (o *Orchestrator) UpdateHostnames(results map[string]HostResult) {
	for _, c := range o.reg.Cases() {
		if c.Host == "" {
			continue
		}
		r, ok := results[c.Host]
		if !ok {
			continue
		}
		c.Hostname = r.ConfigName
		c.HostDomain = r.DomainName
		log.Debug(log.CatRun, "propagate host", "case", c.Name, "host", c.Host, "hostname", r.ConfigName)
	}
}

// Start dispatches runs for every configured case with a command.
func (o *Orchestrator) Start(ctx context.Context) (err error) {
	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanStart,
		attribute.Bool(tracing.AttrDry, o.opts.Dry),
		attribute.String(tracing.AttrPhase, o.mode()),
	)
	defer func() { tracing.End(span, err) }()

	for _, cmd := range o.commands.Commands() {
		if !o.selected(cmd.Case) {
			log.Debug(log.CatRun, "skip case outside selection", "case", cmd.Case)
			continue
		}
		c, err := o.reg.Lookup(cmd.Case)
		if err != nil {
			return err
		}
		if !c.Configured() {
			log.Warn(log.CatRun, "skip unconfigured case", "case", c.Name)
			continue
		}
		for _, argv := range o.runCommands(c) {
			if err := o.runOne(ctx, c, argv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) selected(name string) bool {
	return o.opts.Selection == nil || slices.Contains(o.opts.Selection, name)
}

func (o *Orchestrator) mode() string {
	if o.opts.Mode == definition.ModeTask {
		return definition.ModeTask
	}
	return definition.ModeSuite
}

// runCommands builds the run tool argv list for c.
func (o *Orchestrator) runCommands(c *registry.Case) [][]string {
	dir := o.opts.TestDir
	configFile := filepath.Join(dir, c.ConfigName+".toml")

	if o.mode() == definition.ModeTask {
		if len(c.Tasks) == 0 {
			log.Warn(log.CatRun, "task mode but case has no tasks", "case", c.Name)
		}
		cmds := make([][]string, 0, len(c.Tasks))
		for _, task := range c.Tasks {
			stem := task + "." + c.ConfigName
			cmds = append(cmds, []string{
				"run",
				"--config-file", configFile,
				"--task", task,
				"--job", filepath.Join(dir, stem+".job"),
				"--output", filepath.Join(dir, stem+".log"),
			})
		}
		return cmds
	}

	return [][]string{{
		"start", "suite",
		"--config-file", configFile,
		"-f", filepath.Join(dir, c.ConfigName+".def"),
		"-k",
	}}
}

func (o *Orchestrator) runOne(ctx context.Context, c *registry.Case, argv []string) (err error) {
	cmdline := strings.Join(argv, " ")
	if o.opts.Dry {
		log.Info(log.CatRun, "dry run", "case", c.Name, "cmd", cmdline)
		trace.SpanFromContext(ctx).AddEvent(tracing.EventDryRun, trace.WithAttributes(attribute.String(tracing.AttrCase, c.Name)))
		o.record(c.Name, ledger.PhaseRun, argv[0], argv, ledger.OutcomeDry, 0, nil, nil)
		return nil
	}

	ctx, span := tracing.Start(ctx, o.tracer, tracing.SpanTool,
		attribute.String(tracing.AttrCase, c.Name),
		attribute.StringSlice(tracing.AttrToolArgs, argv),
	)
	start := time.Now()
	defer func() {
		o.finish(c.Name, ledger.PhaseRun, argv[0], argv, start, err, nil)
		tracing.End(span, err)
	}()

	log.Info(log.CatRun, "run case", "case", c.Name, "cmd", cmdline)
	_, err = o.invoke(ctx, o.runTool, argv)
	return err
}
