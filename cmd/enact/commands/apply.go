package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/enactproject/enact/pkg/config"
	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/policy"
)

func newApplyCommand() *cobra.Command {
	var (
		bestEffort        bool
		continueOnFailure bool
		stepTimeout       time.Duration
		policyPaths       []string
	)

	cmd := &cobra.Command{
		Use:   "apply <document>",
		Short: "Resolve a document and apply the execution plan",
		Long: `Apply walks the full pipeline: load the document, validate it,
discover backends, resolve an ordered plan, gate it through policy,
and apply it step by step. Every intent ends up in the run report as
applied, failed, or skipped.

Steps run sequentially in plan order. When a step fails, the run's
failure mode decides what happens to the rest: halt (the default)
skips every remaining step and aborts the run, continue keeps
attempting steps that do not depend on the failed one. Intents can
override the run mode for themselves with the on_failure parameter.

The exit code reports the run status: 0 when every step applied, 1
when the run finished with failures or skips, 2 when it aborted.`,
		Example: `  # Apply a document
  enact apply site.cue

  # Keep going past failed steps
  enact apply site.cue --continue-on-failure

  # Skip unsatisfiable intents and bound each backend call
  enact apply site.cue --best-effort --timeout 30s

  # Gate through an extra policy directory
  enact apply site.cue --policy ./policies`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docPath := args[0]

			p, err := newPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			if bestEffort {
				p.cfg.Engine.BestEffort = true
			}
			if continueOnFailure {
				p.cfg.Engine.FailureMode = string(engine.FailureModeContinue)
			}
			if cmd.Flags().Changed("timeout") {
				if stepTimeout <= 0 {
					return fmt.Errorf("timeout must be positive, got %s", stepTimeout)
				}
				p.cfg.Engine.StepTimeout = config.Duration(stepTimeout)
			}

			if err := p.tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
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

			if err := p.gatePlan(ctx, plan, &policy.Context{
				Document:    docPath,
				FailureMode: engine.FailureMode(p.cfg.Engine.FailureMode),
				BestEffort:  p.cfg.Engine.BestEffort,
				DryRun:      false,
				Timestamp:   time.Now(),
			}, policyPaths); err != nil {
				return err
			}

			if !jsonOutput {
				renderEvents(p.tel.Events, len(plan.Steps))
			}

			step("Applying plan...")
			executor := engine.NewExecutor(registry, p.tel)
			report := executor.Execute(ctx, plan, p.cfg.ExecuteOptions(docPath))

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				renderSummary(report)
			}

			p.archiveReport(report)

			s := report.Summary()
			switch report.Status {
			case engine.RunStatusPartial:
				return &exitError{code: 1, err: fmt.Errorf(
					"run finished partial: %d failed, %d skipped", s.Failed, s.Skipped)}
			case engine.RunStatusAborted:
				return &exitError{code: 2, err: fmt.Errorf(
					"run aborted: %d failed, %d skipped", s.Failed, s.Skipped)}
			default:
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "skip unsatisfiable intents instead of failing")
	cmd.Flags().BoolVar(&continueOnFailure, "continue-on-failure", false, "keep attempting independent steps after a failure")
	cmd.Flags().DurationVar(&stepTimeout, "timeout", engine.DefaultStepTimeout, "per-step backend call timeout")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")

	return cmd
}

// archiveReport saves the report to the run archive when history is
// enabled. Archiving runs under its own context so an interrupted run
// still gets recorded; a failure to archive is a warning, never a
// failure of the run itself.
func (p *pipeline) archiveReport(report *engine.RunReport) {
	if !p.cfg.History.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	archive, err := openArchive(ctx, p.cfg)
	if err != nil {
		warnf("run not archived: %v", err)
		return
	}
	defer archive.Close()

	if err := archive.SaveReport(ctx, report); err != nil {
		warnf("run not archived: %v", err)
		return
	}
	step(fmt.Sprintf("Run archived as %s", report.RunID))
}
