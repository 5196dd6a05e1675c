package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/enactproject/enact/pkg/backend"
	"github.com/enactproject/enact/pkg/config"
	"github.com/enactproject/enact/pkg/docload"
	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/history"
	"github.com/enactproject/enact/pkg/intent"
	"github.com/enactproject/enact/pkg/policy"
	"github.com/enactproject/enact/pkg/schema"
	"github.com/enactproject/enact/pkg/telemetry"
)

// pipeline bundles what every engine-facing command boots first: the
// tool configuration and the telemetry stack built from it. Its methods
// are the shared pipeline stages of plan and apply.
type pipeline struct {
	cfg *config.Config
	tel *telemetry.Telemetry
}

// newPipeline loads the tool configuration and boots telemetry. Events
// are delivered synchronously so the step renderer prints outcomes as
// they happen, not batched at shutdown.
func newPipeline() (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tc := cfg.ToTelemetryConfig(buildVersion)
	if verbose {
		tc.Logging.Level = "debug"
	}
	tc.Events.EnableAsync = false

	tel, err := telemetry.NewTelemetry(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return &pipeline{cfg: cfg, tel: tel}, nil
}

// close flushes and shuts down telemetry under its own timeout, so a
// hung exporter cannot wedge the process on the way out.
func (p *pipeline) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.tel.Shutdown(ctx); err != nil {
		p.tel.Logger.WithError(err).Warn("telemetry shutdown incomplete")
	}
}

// loadAndValidate loads a document and validates it against the schema
// registry. Schema warnings print to stderr; a validation failure is
// returned as the error.
func loadAndValidate(ctx context.Context, path string) (*intent.Set, error) {
	step("Loading document...")
	doc, err := docload.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	step("Validating against schema...")
	set, warnings, err := schema.BuiltinRegistry().Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	for _, w := range warnings {
		warnf("%s", w.Message)
	}
	return set, nil
}

// discover probes the configured backends and reports exclusions. The
// returned registry is open; callers own closing it.
func (p *pipeline) discover(ctx context.Context) (*backend.Registry, error) {
	if len(p.cfg.Backends) == 0 {
		return nil, fmt.Errorf("no backends configured (add a backends section to the config file)")
	}

	step("Discovering backends...")
	registry := backend.Discover(ctx, p.cfg.BackendSpecs(), p.cfg.DiscoveryOptions(buildVersion, p.tel))
	for _, ex := range registry.Exclusions() {
		warnf("backend %s excluded: %s", ex.Name, ex.Reason)
	}
	return registry, nil
}

// resolvePlan discovers backends and resolves the validated set into an
// ordered plan.
func (p *pipeline) resolvePlan(ctx context.Context, set *intent.Set) (*engine.Plan, *backend.Registry, error) {
	registry, err := p.discover(ctx)
	if err != nil {
		return nil, nil, err
	}

	step("Resolving execution plan...")
	resolver := engine.NewResolver(registry, p.tel)
	plan, err := resolver.Resolve(set, p.cfg.ResolveOptions())
	if err != nil {
		_ = registry.Close(context.Background())
		return nil, nil, err
	}
	return plan, registry, nil
}

// gatePlan evaluates the plan against the policy gate. Extra paths come
// from the --policy flag and layer on top of the configured ones;
// policies named in the config disable list are switched off before
// evaluation. Non-blocking findings print as warnings; a denial is
// returned as the error.
func (p *pipeline) gatePlan(ctx context.Context, plan *engine.Plan, pctx *policy.Context, extraPaths []string) error {
	if !p.cfg.Policy.Enabled {
		return nil
	}

	step("Evaluating policies...")
	gate, err := policy.NewGate(policy.Options{Telemetry: p.tel})
	if err != nil {
		return fmt.Errorf("failed to initialize policy gate: %w", err)
	}

	paths := append(append([]string{}, p.cfg.Policy.Paths...), extraPaths...)
	if len(paths) > 0 {
		if err := gate.LoadPaths(ctx, paths); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}
	for _, name := range p.cfg.Policy.Disable {
		if err := gate.SetEnabled(ctx, name, false); err != nil {
			return fmt.Errorf("failed to disable policy %q: %w", name, err)
		}
	}

	result, err := gate.EvaluatePlan(ctx, plan, pctx)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		warnf("policy: %s", w)
	}
	return result.Denial()
}

// openArchive opens the run archive at the configured path and brings
// its schema up to date. Callers own closing it.
func openArchive(ctx context.Context, cfg *config.Config) (*history.Archive, error) {
	archive, err := history.New(history.Config{Path: cfg.History.Path})
	if err != nil {
		return nil, err
	}
	if err := archive.Init(ctx); err != nil {
		return nil, err
	}
	if err := archive.Migrate(ctx); err != nil {
		_ = archive.Close()
		return nil, err
	}
	return archive, nil
}
