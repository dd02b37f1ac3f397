package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/ttr/internal/config"
	"github.com/zjrosen/ttr/internal/flags"
)

func newFlagCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flag [NAME on|off]",
		Short: "Show or toggle feature flags",
		Long: `Without arguments, print every known feature flag and its state.

With a flag name and on or off, store the new state in the settings file
that was loaded (or .ttr/config.yaml when none was). Other settings and
comments in that file are kept.

Examples:
  ttr flag
  ttr flag fragment-diff on`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or NAME on|off, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()

			if len(args) == 0 {
				return printFlags(cmd, flags.New(s.cfg.Flags))
			}

			name := args[0]
			if _, ok := flags.Known[name]; !ok {
				return fmt.Errorf("unknown flag %q; known flags: %s", name, strings.Join(knownFlagNames(), ", "))
			}
			var on bool
			switch strings.ToLower(args[1]) {
			case "on", "true":
				on = true
			case "off", "false":
			default:
				return fmt.Errorf("flag state must be on or off, got %q", args[1])
			}

			path := orDefault(s.configPath, config.LocalConfigPath)
			updated := flags.New(s.cfg.Flags).All()
			updated[name] = on
			if err := config.SaveFlags(path, updated); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", name, state(on), path)
			return err
		},
	}
}

func printFlags(cmd *cobra.Command, r *flags.Registry) error {
	w := cmd.OutOrStdout()
	for _, name := range knownFlagNames() {
		if _, err := fmt.Fprintf(w, "%-16s %-3s  %s\n", name, state(r.Enabled(name)), flags.Known[name]); err != nil {
			return err
		}
	}
	return nil
}

func knownFlagNames() []string {
	names := make([]string, 0, len(flags.Known))
	for name := range flags.Known {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func state(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
