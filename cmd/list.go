package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/ttr/internal/flags"
	"github.com/zjrosen/ttr/internal/pipeline"
	"github.com/zjrosen/ttr/internal/presentation"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available and selected cases",
		Long: `List every case of the definition, then the cases selected to run.

Subtag and build matrix cases are included, so the listing shows exactly
what a run would configure. With --verbose, or the case-dump feature flag,
each selected case is followed by its full record.

Examples:
  # Plain listing
  ttr list -c test_cases.toml

  # Names of the selected cases with jq
  ttr list --json | jq -r '.selected[]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			p, err := s.pipeline(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), p, asJSON, opts.verbose || p.Flags().Enabled(flags.FlagCaseDump))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func printList(w io.Writer, p *pipeline.Pipeline, asJSON, dump bool) error {
	list := presentation.FromRegistry(p.Registry(), p.Tag(), p.Selection())
	f := presentation.NewFormatter(w)
	if asJSON {
		return f.FormatListJSON(list)
	}
	return f.FormatList(list, dump)
}
