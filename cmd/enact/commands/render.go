package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/telemetry"
)

// Pipeline progress and warnings go to stderr so data output (plans,
// reports, JSON) stays clean on stdout.

// step prints a pipeline stage marker.
func step(msg string) {
	fmt.Fprintln(os.Stderr, "□ "+msg)
}

// warnf prints a warning marker.
func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "! "+format+"\n", args...)
}

// printJSON renders any value as indented JSON on stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// renderPlan prints the plan as a numbered step listing followed by the
// intents excluded during resolution.
func renderPlan(plan *engine.Plan) {
	if plan.Empty() && len(plan.Skipped) == 0 {
		fmt.Println("Execution plan is empty: the document declares no intents.")
		return
	}

	fmt.Printf("Execution plan: %d steps (schema %s)\n\n", len(plan.Steps), plan.SchemaVersion)

	width := 0
	for _, s := range plan.Steps {
		if n := len(s.Ref()); n > width {
			width = n
		}
	}
	for _, s := range plan.Steps {
		line := fmt.Sprintf("  %3d. %-*s  %s", s.Index+1, width, s.Ref(), s.Backend)
		if s.BackendVersion != "" {
			line += " " + s.BackendVersion
		}
		line += fmt.Sprintf("  [%s]", s.Fidelity)
		if len(s.DependsOn) > 0 {
			line += "  after " + joinIndices(s.DependsOn)
		}
		fmt.Println(line)
	}

	if len(plan.Skipped) > 0 {
		fmt.Printf("\nSkipped during resolution:\n")
		for _, sk := range plan.Skipped {
			fmt.Printf("  - %s: %s\n", sk.Intent.Ref(), sk.Reason)
		}
	}
}

// joinIndices renders plan indices as the 1-based step numbers the
// listing shows.
func joinIndices(deps []int) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = strconv.Itoa(d + 1)
	}
	return strings.Join(parts, ", ")
}

// renderEvents subscribes a live renderer to the executor's lifecycle
// events, printing one line per outcome as the run progresses.
func renderEvents(events *telemetry.EventPublisher, total int) {
	events.Subscribe(func(ev telemetry.Event) {
		ref := fmt.Sprintf("%s %q", ev.Kind, ev.Target)
		switch ev.Type {
		case telemetry.EventTypeStepApplied:
			suffix := ""
			if changed, ok := ev.Data["changed"].(bool); ok && changed {
				suffix = " (changed)"
			}
			fmt.Printf("✓ [%d/%d] %s applied%s\n", ev.StepIndex+1, total, ref, suffix)
		case telemetry.EventTypeStepFailed:
			reason, _ := ev.Data["reason"].(string)
			fmt.Printf("✗ [%d/%d] %s failed: %s\n", ev.StepIndex+1, total, ref, reason)
		case telemetry.EventTypeStepSkipped:
			reason, _ := ev.Data["reason"].(string)
			if ev.StepIndex < 0 {
				fmt.Printf("- %s skipped: %s\n", ref, reason)
				return
			}
			fmt.Printf("- [%d/%d] %s skipped: %s\n", ev.StepIndex+1, total, ref, reason)
		}
	}, telemetry.FilterByType(
		telemetry.EventTypeStepApplied,
		telemetry.EventTypeStepFailed,
		telemetry.EventTypeStepSkipped,
	))
}

// renderSummary prints the one-line run footer.
func renderSummary(report *engine.RunReport) {
	s := report.Summary()
	fmt.Printf("\nRun %s finished: %s (%d applied, %d changed, %d failed, %d skipped, %s)\n",
		shortID(report.RunID), report.Status,
		s.Applied, s.Changed, s.Failed, s.Skipped,
		formatDuration(report.Duration))
}

// shortID abbreviates a run UUID for display. Full IDs stay in JSON
// output and the archive.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration rounds a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
