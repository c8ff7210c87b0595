package contactflow

import (
	"context"
	"database/sql"
	"time"

	"github.com/mariusgr/contactflow/internal/engine"
	"github.com/mariusgr/contactflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowDefinition   = api.WorkflowDefinition
	ContactPayload       = api.ContactPayload
	Run                  = api.Run
	RunResult            = api.RunResult
	RunListOptions       = api.RunListOptions
	StepRecord           = api.StepRecord
	Status               = api.Status
	StepFunc             = api.StepFunc
	RetryPolicy          = api.RetryPolicy
	SenderError          = api.SenderError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	NewRetryableSenderError = api.NewRetryableSenderError
	NewPermanentSenderError = api.NewPermanentSenderError
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists runs in a SQLite database.
// Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// EngineOptions tunes engine behavior beyond the compiled-in defaults.
// The zero value keeps every default.
type EngineOptions struct {
	// DefaultRetry replaces the built-in retry policy for steps that carry
	// no explicit one.
	DefaultRetry *RetryPolicy

	// RunTimeout bounds the wall-clock duration of one run. Zero or
	// negative keeps the default.
	RunTimeout time.Duration
}

// NewSQLiteEngineWithOptions is NewSQLiteEngineWithObserver with retry and
// timeout tuning, typically sourced from the application config.
func NewSQLiteEngineWithOptions(db *sql.DB, obs Observer, opts EngineOptions) (Engine, error) {
	return engine.NewSQLiteEngineWithConfig(db, engine.Config{
		Observer:     obs,
		DefaultRetry: opts.DefaultRetry,
		RunTimeout:   opts.RunTimeout,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Submit runs a registered workflow synchronously for one submission.
// runID keys idempotency; pass "" to generate one.
func Submit(ctx context.Context, eng Engine, workflow string, payload ContactPayload, runID string) (*RunResult, error) {
	return eng.Submit(ctx, workflow, payload, runID)
}

// GetRun fetches a run by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*Run, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*Run, error) {
	return eng.ListRuns(ctx, opts)
}

// Resume re-drives a previously failed run, skipping succeeded steps.
func Resume(ctx context.Context, eng Engine, id string) (*RunResult, error) {
	return eng.Resume(ctx, id)
}

// Cancel requests cancellation of a non-terminal run.
func Cancel(ctx context.Context, eng Engine, id string) error {
	return eng.Cancel(ctx, id)
}

// RecoverStuckRuns delegates to eng.RecoverStuckRuns.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := contactflow.RecoverStuckRuns(ctx, engine)
func RecoverStuckRuns(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckRuns(ctx)
}
