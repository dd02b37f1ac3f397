package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/presentation"
)

// ErrLedgerDisabled is returned by history when the ledger is off.
var ErrLedgerDisabled = errors.New("the run ledger is disabled (ledger.enabled in settings)")

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		filter ledger.Filter
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded configure and run invocations",
		Long: `Show the run ledger, newest first.

Every configure, run and archive extraction is recorded with the ID of the
invocation that made it, its outcome and its exit code.

Examples:
  # Last 20 entries
  ttr history --limit 20

  # Everything one invocation did
  ttr history --run 0b7c1f2e-...

  # Failed entries for one case
  ttr history --case AROME --json | jq '.[] | select(.outcome == "failed")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			if s.store == nil {
				return ErrLedgerDisabled
			}
			entries, err := s.store.List(filter)
			if err != nil {
				return err
			}

			f := presentation.NewFormatter(cmd.OutOrStdout())
			if asJSON {
				return f.FormatHistoryJSON(presentation.FromEntries(entries))
			}
			return f.FormatHistory(presentation.FromEntries(entries))
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "only entries of this run ID")
	cmd.Flags().StringVar(&filter.Case, "case", "", "only entries of this case")
	return cmd
}
