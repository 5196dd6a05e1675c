package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/enactproject/enact/pkg/engine"
)

func setupArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := New(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func sampleReport(runID string, started time.Time) *engine.RunReport {
	return &engine.RunReport{
		RunID:         runID,
		Document:      "site.cue",
		SchemaVersion: "1.2",
		FailureMode:   engine.FailureModeHalt,
		Status:        engine.RunStatusPartial,
		Outcomes: []engine.StepOutcome{
			{
				Index:  -1,
				Kind:   "kernel",
				Target: "vm.swappiness",
				Status: engine.StepStatusSkipped,
				Detail: `no backend provides kind "kernel"`,
			},
			{
				Index:       0,
				Kind:        "package",
				Target:      "nginx",
				Backend:     "apk",
				Status:      engine.StepStatusApplied,
				Detail:      "installed nginx 1.24.0",
				Changed:     true,
				StartedAt:   started,
				CompletedAt: started.Add(1200 * time.Millisecond),
				Duration:    1200 * time.Millisecond,
			},
			{
				Index:       1,
				Kind:        "service",
				Target:      "nginx",
				Backend:     "openrc",
				Status:      engine.StepStatusFailed,
				Detail:      "rc-service exited 1",
				StartedAt:   started.Add(1200 * time.Millisecond),
				CompletedAt: started.Add(2 * time.Second),
				Duration:    800 * time.Millisecond,
			},
		},
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
		Duration:    3 * time.Second,
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted an empty path")
	}
}

func TestArchive_SaveAndGetRun(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	report := sampleReport("run-001", started)

	if err := a.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rec, err := a.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if rec.Document != "site.cue" {
		t.Errorf("document = %q", rec.Document)
	}
	if rec.SchemaVersion != "1.2" {
		t.Errorf("schema version = %q", rec.SchemaVersion)
	}
	if rec.FailureMode != engine.FailureModeHalt {
		t.Errorf("failure mode = %s", rec.FailureMode)
	}
	if rec.Status != engine.RunStatusPartial {
		t.Errorf("status = %s", rec.Status)
	}
	if !rec.StartedAt.Equal(started) {
		t.Errorf("started at = %v, want %v", rec.StartedAt, started)
	}
	if !rec.CompletedAt.Equal(started.Add(3 * time.Second)) {
		t.Errorf("completed at = %v", rec.CompletedAt)
	}
	if rec.Duration != 3*time.Second {
		t.Errorf("duration = %v", rec.Duration)
	}
	if rec.Total != 3 || rec.Applied != 1 || rec.Failed != 1 || rec.Skipped != 1 || rec.Changed != 1 {
		t.Errorf("summary = %+v", rec)
	}
}

func TestArchive_ListOutcomes(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	if err := a.SaveReport(ctx, sampleReport("run-001", started)); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	outcomes, err := a.ListOutcomes(ctx, "run-001")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}

	// Report order is preserved: the resolution skip leads.
	skip := outcomes[0]
	if skip.Position != 0 || skip.StepIndex != -1 {
		t.Errorf("skip position/index = %d/%d", skip.Position, skip.StepIndex)
	}
	if skip.Kind != "kernel" || skip.Status != engine.StepStatusSkipped {
		t.Errorf("skip = %+v", skip)
	}
	if !skip.StartedAt.IsZero() || !skip.CompletedAt.IsZero() {
		t.Errorf("skip timestamps = %v/%v, want zero", skip.StartedAt, skip.CompletedAt)
	}

	applied := outcomes[1]
	if applied.StepIndex != 0 || applied.Backend != "apk" {
		t.Errorf("applied = %+v", applied)
	}
	if !applied.Changed {
		t.Error("applied outcome lost its changed flag")
	}
	if !applied.StartedAt.Equal(started) {
		t.Errorf("applied started at = %v, want %v", applied.StartedAt, started)
	}
	if applied.Duration != 1200*time.Millisecond {
		t.Errorf("applied duration = %v", applied.Duration)
	}

	failed := outcomes[2]
	if failed.Status != engine.StepStatusFailed || failed.Detail != "rc-service exited 1" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestArchive_ListRunsNewestFirst(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		report := sampleReport(id, base.Add(time.Duration(i)*time.Hour))
		if err := a.SaveReport(ctx, report); err != nil {
			t.Fatalf("SaveReport %s: %v", id, err)
		}
	}

	runs, err := a.ListRuns(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(runs))
	}
	want := []string{"run-new", "run-mid", "run-old"}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, id)
		}
	}

	page, err := a.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListRuns page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "run-mid" {
		t.Errorf("page = %+v, want just run-mid", page)
	}
}

func TestArchive_GetRunMissing(t *testing.T) {
	a := setupArchive(t)

	_, err := a.GetRun(context.Background(), "no-such-run")
	if err == nil {
		t.Fatal("GetRun returned a record for a missing run")
	}
	if !strings.Contains(err.Error(), "no-such-run") {
		t.Errorf("error = %v", err)
	}
}

func TestArchive_DuplicateRunIDFails(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	report := sampleReport("run-001", started)

	if err := a.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := a.SaveReport(ctx, report); err == nil {
		t.Fatal("second SaveReport with the same run ID succeeded")
	}

	// The failed save must not leave partial outcome rows behind.
	outcomes, err := a.ListOutcomes(ctx, "run-001")
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Errorf("outcomes = %d, want the original 3", len(outcomes))
	}
}

func TestArchive_MigrateIdempotent(t *testing.T) {
	a := setupArchive(t)

	if err := a.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestArchive_RequiresInit(t *testing.T) {
	a, err := New(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Migrate(ctx); err == nil {
		t.Error("Migrate before Init succeeded")
	}
	if err := a.SaveReport(ctx, sampleReport("run-001", time.Now())); err == nil {
		t.Error("SaveReport before Init succeeded")
	}
	if _, err := a.ListRuns(ctx, 0, 0); err == nil {
		t.Error("ListRuns before Init succeeded")
	}
	if _, err := a.GetRun(ctx, "run-001"); err == nil {
		t.Error("GetRun before Init succeeded")
	}
	if _, err := a.ListOutcomes(ctx, "run-001"); err == nil {
		t.Error("ListOutcomes before Init succeeded")
	}
}
