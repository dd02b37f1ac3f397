package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/ttr/internal/config"
	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/log"
	"github.com/zjrosen/ttr/internal/metrics"
	"github.com/zjrosen/ttr/internal/paths"
	"github.com/zjrosen/ttr/internal/pipeline"
	"github.com/zjrosen/ttr/internal/tracing"
)

// DefaultDefinition is the definition file read when -c is not given.
const DefaultDefinition = "test_cases.toml"

var version = "dev"

// rootOptions holds the global command line flags.
type rootOptions struct {
	definition      string
	settings        string
	list            bool
	dry             bool
	verbose         bool
	prepareBinaries bool
	skipRun         bool
}

// NewRootCmd builds the ttr command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ttr",
		Short: "Configure and launch deode test cases from a TOML definition",
		Long: `ttr reads a definition of named test cases, writes one override fragment per
case, configures each case with deode and starts the resulting suites.

Cases that couple to a host case are configured after their host so the
host's configuration name and domain can be substituted into them.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.definition, "config-file", "c", DefaultDefinition, "test case definition file")
	pf.StringVar(&opts.settings, "settings", "",
		"settings file (default: .ttr/config.yaml, then ~/.config/ttr/config.yaml)")
	pf.BoolVarP(&opts.dry, "dry", "d", false, "configure cases but only log run and extraction commands")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging and detailed listings")

	root.Flags().BoolVarP(&opts.list, "list", "l", false, "list available and selected cases")
	root.Flags().BoolVarP(&opts.prepareBinaries, "prepare-binaries", "p", false,
		"unpack build archives for the [ial] hash into the binary directories")
	root.Flags().BoolVarP(&opts.skipRun, "skip-run", "m", false, "only write the override fragments")

	root.AddCommand(newListCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newFlagCmd(opts))
	return root
}

func (o *rootOptions) run(cmd *cobra.Command) error {
	s, err := o.open(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	p, err := s.pipeline(ctx, o)
	if err != nil {
		return err
	}

	switch {
	case o.prepareBinaries:
		return p.FetchBinaries(ctx)
	case o.list:
		return printList(cmd.OutOrStdout(), p, false, o.verbose || p.Flags().Enabled(flags.FlagCaseDump))
	default:
		return p.Execute(ctx, o.skipRun)
	}
}

// session carries what one invocation opened: settings, logging, tracing,
// metrics and the ledger.
type session struct {
	cfg        config.Config
	configPath string
	provider   *tracing.Provider
	metrics    *metrics.Metrics
	store      *ledger.Store
	closers    []func()
}

// open loads settings and starts the ambient services. The ledger is opened
// only when enabled; failing to open it is logged, not fatal.
func (o *rootOptions) open(console io.Writer) (*session, error) {
	cfg, configPath, err := config.Load(o.settings)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, configPath: configPath, metrics: metrics.New()}

	cleanup, err := log.Init(log.Config{
		Console:   console,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Verbose:   o.verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing log: %w", err)
	}
	s.closers = append(s.closers, cleanup)

	s.provider, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "tracing shutdown failed", err)
		}
	})

	if cfg.Ledger.Enabled {
		store, err := ledger.Open(orDefault(cfg.Ledger.Path, config.DefaultLedgerPath()))
		if err != nil {
			log.ErrorErr(log.CatLedger, "ledger unavailable, runs will not be recorded", err)
		} else {
			s.store = store
			s.closers = append(s.closers, func() { _ = store.Close() })
		}
	}

	if cfg.Metrics.Textfile != "" {
		s.closers = append(s.closers, func() {
			if err := s.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				log.ErrorErr(log.CatMetrics, "writing metrics textfile failed", err)
			}
		})
	}
	return s, nil
}

// close releases resources in reverse order of opening.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *session) pipeline(ctx context.Context, o *rootOptions) (*pipeline.Pipeline, error) {
	options := []pipeline.Option{
		pipeline.WithTracer(s.provider.Tracer()),
		pipeline.WithMetrics(s.metrics),
	}
	if s.store != nil {
		options = append(options, pipeline.WithRecorder(s.store))
	}
	return pipeline.New(ctx, pipeline.Options{
		DefinitionPath: o.definition,
		PyprojectPath:  pipeline.DefaultPyproject,
		Dry:            o.dry,
		Settings:       s.cfg,
		User:           paths.CurrentUser(),
	}, options...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
