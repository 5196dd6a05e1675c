// Package history archives run reports in SQLite. The archive is
// strictly additive and purely observational: resolution and execution
// never read from it. Runs and their step outcomes are written in one
// transaction after a run completes; the history command reads them
// back. The schema is managed by embedded migrations.
package history
