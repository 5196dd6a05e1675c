package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/enactproject/enact/pkg/backend"
	"github.com/enactproject/enact/pkg/engine"
	"github.com/enactproject/enact/pkg/telemetry"
)

// Backend transport types.
const (
	// TypeExec runs the backend as a child process speaking the protocol
	// on stdio.
	TypeExec = "exec"

	// TypeWasm runs the backend as a WASI module with stdio pipes.
	TypeWasm = "wasm"
)

// Config is the enact tool configuration. The zero value is not usable;
// start from Default or Load.
type Config struct {
	// Engine configures resolution and execution.
	Engine EngineConfig `yaml:"engine"`

	// Backends lists the backend candidates discovery probes, in the
	// order that breaks resolution ties when Engine.Priority does not.
	Backends []BackendConfig `yaml:"backends" validate:"dive"`

	// Policy configures the admission gate.
	Policy PolicyConfig `yaml:"policy"`

	// History configures the run archive.
	History HistoryConfig `yaml:"history"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig configures resolution and execution.
type EngineConfig struct {
	// FailureMode is the run's partial-failure policy: halt or continue.
	FailureMode string `yaml:"failure_mode" validate:"required,oneof=halt continue"`

	// BestEffort records intents with no capable backend as skipped
	// instead of failing resolution.
	BestEffort bool `yaml:"best_effort"`

	// ProbeTimeout bounds each candidate's discovery probe.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// StepTimeout bounds each backend apply call.
	StepTimeout Duration `yaml:"step_timeout"`

	// Priority is the default-backend order used when hints and fidelity
	// leave several candidates for an intent. Every entry must name a
	// configured backend.
	Priority []string `yaml:"priority" validate:"dive,required"`
}

// BackendConfig is one backend candidate.
type BackendConfig struct {
	// Name is the name documents and priority lists refer to.
	Name string `yaml:"name" validate:"required"`

	// Type selects the transport: exec or wasm.
	Type string `yaml:"type" validate:"required,oneof=exec wasm"`

	// Path is the executable path (exec) or module file (wasm).
	Path string `yaml:"path" validate:"required"`

	// Args are extra arguments for exec backends.
	Args []string `yaml:"args,omitempty"`
}

// PolicyConfig configures the admission gate.
type PolicyConfig struct {
	// Enabled turns the gate on. Off, plans run unexamined.
	Enabled bool `yaml:"enabled"`

	// Paths lists .rego files and directories to load.
	Paths []string `yaml:"paths" validate:"dive,required"`

	// Disable names policies to keep loaded but not evaluate, builtins
	// included.
	Disable []string `yaml:"disable" validate:"dive,required"`
}

// HistoryConfig configures the run archive.
type HistoryConfig struct {
	// Enabled turns archiving on; apply then records every run report.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// TelemetryConfig configures logging, metrics, and tracing.
type TelemetryConfig struct {
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level" validate:"required,oneof=trace debug info warn error fatal"`

	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format" validate:"required,oneof=console json"`

	// Metrics configures the prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures the trace exporter.
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `yaml:"enabled"`

	// Listen is the metrics HTTP listen address.
	Listen string `yaml:"listen"`
}

// TracingConfig configures the trace exporter.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter is the span exporter: otlp, stdout, or none.
	Exporter string `yaml:"exporter" validate:"required,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector address, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// SamplingRate is the fraction of runs traced, 0 to 1.
	SamplingRate float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// Default returns the built-in configuration: no backends, halt on first
// failure, the policy gate on with only the builtin policies, history
// off, console logging at info.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			FailureMode:  string(engine.FailureModeHalt),
			ProbeTimeout: Duration(backend.DefaultProbeTimeout),
			StepTimeout:  Duration(engine.DefaultStepTimeout),
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "/var/lib/enact/history.db",
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "console",
			Metrics: MetricsConfig{
				Enabled: false,
				Listen:  ":9477",
			},
			Tracing: TracingConfig{
				Enabled:      false,
				Exporter:     "none",
				SamplingRate: 1.0,
			},
		},
	}
}

// Load returns the configuration at path layered over Default. An empty
// path selects the defaults unchanged; anything else must exist, decode,
// and validate. Unknown keys are errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validate holds the struct validator; constraints live as tags on the
// configuration types.
var validate = validator.New()

// Validate checks field constraints and cross-references. Load calls it;
// callers assembling a Config in code run it themselves.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}

	names := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if names[b.Name] {
			errs = append(errs, fmt.Errorf("duplicate backend name %q", b.Name))
			continue
		}
		names[b.Name] = true
		if b.Type != TypeExec && len(b.Args) > 0 {
			errs = append(errs, fmt.Errorf("backend %s: args apply only to exec backends", b.Name))
		}
	}
	for _, name := range c.Engine.Priority {
		if !names[name] {
			errs = append(errs, fmt.Errorf("priority names unknown backend %q", name))
		}
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, fmt.Errorf("history.path is required when history is enabled"))
	}
	if c.Telemetry.Metrics.Enabled && c.Telemetry.Metrics.Listen == "" {
		errs = append(errs, fmt.Errorf("telemetry.metrics.listen is required when metrics are enabled"))
	}
	if c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.Exporter == "otlp" && c.Telemetry.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("telemetry.tracing.endpoint is required for the otlp exporter"))
	}

	return errors.Join(errs...)
}

// BackendSpecs builds the discovery candidates from the configured
// backends, preserving configuration order.
func (c *Config) BackendSpecs() []backend.Spec {
	specs := make([]backend.Spec, 0, len(c.Backends))
	for _, b := range c.Backends {
		spec := backend.Spec{Name: b.Name}
		switch b.Type {
		case TypeWasm:
			spec.Transport = backend.NewWasmTransport(b.Path)
		default:
			spec.Transport = backend.NewExecTransport(b.Path, b.Args...)
		}
		specs = append(specs, spec)
	}
	return specs
}

// DiscoveryOptions assembles the discovery options.
func (c *Config) DiscoveryOptions(engineVersion string, tel *telemetry.Telemetry) backend.Options {
	return backend.Options{
		ProbeTimeout:  c.Engine.ProbeTimeout.Std(),
		EngineVersion: engineVersion,
		Telemetry:     tel,
	}
}

// ResolveOptions assembles the resolver options.
func (c *Config) ResolveOptions() engine.ResolveOptions {
	return engine.ResolveOptions{
		BestEffort: c.Engine.BestEffort,
		Priority:   c.Engine.Priority,
	}
}

// ExecuteOptions assembles the executor options for one document.
func (c *Config) ExecuteOptions(document string) engine.ExecuteOptions {
	return engine.ExecuteOptions{
		FailureMode: engine.FailureMode(c.Engine.FailureMode),
		StepTimeout: c.Engine.StepTimeout.Std(),
		Document:    document,
	}
}

// ToTelemetryConfig maps the telemetry section onto the telemetry
// package's configuration, starting from that package's defaults.
func (c *Config) ToTelemetryConfig(serviceVersion string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	if serviceVersion != "" {
		tc.ServiceVersion = serviceVersion
	}
	tc.Logging.Level = c.Telemetry.LogLevel
	tc.Logging.Format = c.Telemetry.LogFormat
	tc.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	if c.Telemetry.Metrics.Listen != "" {
		tc.Metrics.ListenAddress = c.Telemetry.Metrics.Listen
	}
	tc.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	tc.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	tc.Tracing.Endpoint = c.Telemetry.Tracing.Endpoint
	tc.Tracing.SamplingRate = c.Telemetry.Tracing.SamplingRate
	return tc
}

// Duration is a time.Duration that decodes from YAML duration strings
// like "30s" or "2m". Negative durations are rejected.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String renders the duration the way time.Duration does.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\"")
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q is negative", raw)
	}
	*d = Duration(parsed)
	return nil
}
