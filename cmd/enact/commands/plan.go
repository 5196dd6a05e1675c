package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/policy"
)

func newPlanCommand() *cobra.Command {
	var (
		bestEffort  bool
		outFormat   string
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "plan <document>",
		Short: "Resolve a document into an execution plan",
		Long: `Plan walks the pipeline up to the point of execution: load the
document, validate it, discover backends, and resolve an ordered,
conflict-checked execution plan. Policies are evaluated against the
plan with dry_run set, so a plan that would be denied fails here too.
Nothing is applied.

In best-effort mode, intents no available backend can satisfy are
recorded as skipped instead of failing resolution.`,
		Example: `  # Preview the plan for a document
  enact plan site.cue

  # Keep planning around unsatisfiable intents
  enact plan site.cue --best-effort

  # Machine-readable plan
  enact plan site.cue --out json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docPath := args[0]

			if outFormat != "text" && outFormat != "json" {
				return fmt.Errorf("unknown output format %q (supported: text, json)", outFormat)
			}
			if jsonOutput && !cmd.Flags().Changed("out") {
				outFormat = "json"
			}

			p, err := newPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			if bestEffort {
				p.cfg.Engine.BestEffort = true
			}

			set, err := loadAndValidate(ctx, docPath)
			if err != nil {
				return err
			}

			plan, registry, err := p.resolvePlan(ctx, set)
			if err != nil {
				return err
			}
			defer registry.Close(context.Background())

			if outFormat == "json" {
				if err := printJSON(plan); err != nil {
					return err
				}
			} else {
				renderPlan(plan)
			}

			// The plan is shown even when policy denies it, so the
			// denial can be read against the steps it names.
			return p.gatePlan(ctx, plan, &policy.Context{
				Document:    docPath,
				FailureMode: engine.FailureMode(p.cfg.Engine.FailureMode),
				BestEffort:  p.cfg.Engine.BestEffort,
				DryRun:      true,
				Timestamp:   time.Now(),
			}, policyPaths)
		},
	}

	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "skip unsatisfiable intents instead of failing")
	cmd.Flags().StringVar(&outFormat, "out", "text", "output format (text or json)")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")

	return cmd
}
