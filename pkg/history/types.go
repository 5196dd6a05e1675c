package history

import (
	"time"

	"github.com/enactproject/enact/pkg/engine"
)

// Config holds archive configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// MaxOpenConns caps the connection pool. Zero means 25.
	MaxOpenConns int

	// MaxIdleConns caps idle connections. Zero means 5.
	MaxIdleConns int

	// ConnMaxLifetime recycles connections. Zero means 5 minutes.
	ConnMaxLifetime time.Duration
}

// RunRecord is one archived run: the report header plus its summary
// counts, denormalized for listing without touching step_outcomes.
type RunRecord struct {
	ID            string             `json:"id"`
	Document      string             `json:"document,omitempty"`
	SchemaVersion string             `json:"schema_version,omitempty"`
	FailureMode   engine.FailureMode `json:"failure_mode"`
	Status        engine.RunStatus   `json:"status"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
	Duration      time.Duration      `json:"duration"`
	Total         int                `json:"total"`
	Applied       int                `json:"applied"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	Changed       int                `json:"changed"`
}

// OutcomeRecord is one archived step outcome. Position is the outcome's
// place in the report; StepIndex is the plan index, -1 for intents
// skipped during resolution.
type OutcomeRecord struct {
	RunID       string            `json:"run_id"`
	Position    int               `json:"position"`
	StepIndex   int               `json:"step_index"`
	Kind        string            `json:"kind"`
	Target      string            `json:"target"`
	Backend     string            `json:"backend,omitempty"`
	Status      engine.StepStatus `json:"status"`
	Detail      string            `json:"detail,omitempty"`
	Changed     bool              `json:"changed"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
	Duration    time.Duration     `json:"duration"`
}
