// Package api contains the core building blocks of the contactflow
// notification engine: payload and run types, workflow definitions, retry
// policies, typed sender errors, and the Observer interface.
//
// Most users interact with the higher-level contactflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations or contributors extending the engine
// itself.
//
// # Runs and StepRecords
//
// A Run is one durable execution of a workflow for a single submitted
// ContactPayload. Each declared step has a StepRecord persisting its status,
// attempt count, last error, and timestamps. StepRecord transitions are
// forward-only, and a SUCCEEDED record is never re-executed, even across
// process restarts.
//
// # Steps
//
// Steps are independent units of work (one notification channel each). They
// are expected to be idempotent-enough: a duplicate notification after a
// crash between "sent" and "persisted" is tolerable, a lost one is not.
//
// # Errors
//
// SenderError classifies failures as retryable (timeouts, 5xx, rate limits)
// or permanent (vendor-side validation, auth). The step executor retries
// only retryable errors, up to the step's RetryPolicy budget.
//
// # Observability
//
// The Observer interface reports run and step lifecycle events. Ready-made
// implementations cover structured logging (log/slog), basic in-memory
// metrics, and fan-out composition.
package api
