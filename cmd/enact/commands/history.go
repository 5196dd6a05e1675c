package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/enactproject/enact/pkg/config"
	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived runs",
		Long: `History reads the run archive that apply writes when history is
enabled in the configuration. The archive is a plain SQLite file and
never influences planning or execution.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Example: `  # Most recent runs
  enact history list

  # Page through older runs
  enact history list --limit 20 --offset 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			archive, err := openConfiguredArchive(ctx)
			if err != nil {
				return err
			}
			defer archive.Close()

			runs, err := archive.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("No archived runs.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tDOCUMENT\tSTARTED\tDURATION\tAPPLIED\tFAILED\tSKIPPED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.Status, orDash(r.Document),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					formatDuration(r.Duration),
					r.Applied, r.Failed, r.Skipped)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run with every outcome",
		Example: `  # Show a run by ID (IDs come from history list or apply output)
  enact history show 4b2f6c1e-9d7a-4f7e-a1c3-2f8b6d0e5a90`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			archive, err := openConfiguredArchive(ctx)
			if err != nil {
				return err
			}
			defer archive.Close()

			run, err := archive.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			outcomes, err := archive.ListOutcomes(ctx, runID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"run":      run,
					"outcomes": outcomes,
				})
			}

			renderRun(run, outcomes)
			return nil
		},
	}

	return cmd
}

// openConfiguredArchive opens the archive named by the configuration.
// Reading never creates the database: a missing file means nothing has
// been archived yet.
func openConfiguredArchive(ctx context.Context) (*history.Archive, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run archive at %s (enable history in the config and apply a document first)", cfg.History.Path)
		}
		return nil, err
	}
	return openArchive(ctx, cfg)
}

// renderRun prints one archived run: the header fields, the summary
// counts, and the outcome table in report order.
func renderRun(run *history.RunRecord, outcomes []history.OutcomeRecord) {
	fmt.Printf("Run %s\n\n", run.ID)
	fmt.Printf("  Status:        %s\n", run.Status)
	if run.Document != "" {
		fmt.Printf("  Document:      %s\n", run.Document)
	}
	if run.SchemaVersion != "" {
		fmt.Printf("  Schema:        %s\n", run.SchemaVersion)
	}
	fmt.Printf("  Failure mode:  %s\n", run.FailureMode)
	fmt.Printf("  Started:       %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Completed:     %s\n", run.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration:      %s\n", formatDuration(run.Duration))
	fmt.Printf("  Outcomes:      %d total, %d applied (%d changed), %d failed, %d skipped\n",
		run.Total, run.Applied, run.Changed, run.Failed, run.Skipped)

	if len(outcomes) == 0 {
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tINTENT\tBACKEND\tSTATUS\tDURATION\tDETAIL")
	for _, o := range outcomes {
		stepNo := "-"
		if o.StepIndex >= 0 {
			stepNo = strconv.Itoa(o.StepIndex + 1)
		}
		duration := "-"
		if o.Status != engine.StepStatusSkipped {
			duration = formatDuration(o.Duration)
		}
		fmt.Fprintf(w, "%s\t%s %q\t%s\t%s\t%s\t%s\n",
			stepNo, o.Kind, o.Target, orDash(o.Backend), o.Status, duration, orDash(o.Detail))
	}
	w.Flush()
}

// orDash substitutes a dash for an empty table cell.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
