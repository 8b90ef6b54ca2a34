package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/recinq/composer/internal/display"
	"github.com/recinq/composer/internal/tui"
)

type RunsOptions struct {
	Limit       int
	Interactive bool
}

func NewRunsCmd() *cobra.Command {
	var opts RunsOptions

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded composition runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "I", false, "Browse runs interactively")

	return cmd
}

func runRuns(cmd *cobra.Command, opts RunsOptions) error {
	log := newLogger(cmd)
	store := openStore(log)
	if store == nil {
		return fmt.Errorf("run history is unavailable")
	}
	defer store.Close()

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	if opts.Interactive && display.IsTerminal(os.Stdout) {
		selected, err := tui.SelectRun(runs)
		if err != nil {
			return err
		}
		if selected == nil {
			return nil
		}
		events, err := store.GetEvents(selected.RunID, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s\n", selected.RunID, selected.Composition, selected.Status)
		for _, e := range events {
			fmt.Printf("  %s  %-10s %s\n", e.Timestamp.Format(time.RFC3339), e.State, e.Message)
		}
		return nil
	}

	format, _ := cmd.Root().PersistentFlags().GetString("output")
	if format == OutputFormatJSON || (format == OutputFormatAuto && !display.IsTerminal(os.Stdout)) {
		return printJSON(runs)
	}

	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%-36s  %-20s  %-9s  %4d steps  %s\n", r.RunID, r.Composition, r.Status, r.Steps, completed)
	}
	return nil
}
