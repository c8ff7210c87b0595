// Package contactflow provides a small durable-execution runtime for
// contact-form notification fan-out.
//
// A submitted contact payload becomes a Run: a durable record of an ordered
// sequence of independent notification steps (a chat-ops webhook and a
// transactional email). The engine executes the steps sequentially, persists
// per-step progress after every status transition, retries transient
// failures with bounded backoff, and never re-executes a step that has
// durably succeeded, so a crash, restart, or queue redelivery can neither
// lose nor duplicate a notification beyond what the channels tolerate.
//
// # Core Concepts
//
//  1. Engine: registers workflow definitions, drives runs, exposes
//     idempotent Submit keyed by run id, Resume, Cancel, and startup
//     recovery.
//  2. Run / StepRecord: the durable state, overall status plus per-step
//     status, attempt count, last error, and timestamps.
//  3. FlowBuilder: fluent construction of workflow definitions;
//     ContactWorkflow builds the standard two-channel workflow.
//  4. Senders: the notification channels (pkg/notify), with errors
//     classified so the executor retries only what retrying can fix.
//  5. Worker: a queue consumer (pkg/worker) mapping at-least-once task
//     delivery onto the engine's idempotent resume.
//
// # Persistence
//
// Engines can be backed by different stores:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres, Redis, MongoDB (submodules)
//
// SQLite deployments can use NewSQLiteBundle to share one database between
// the run store and the task queue.
//
// # Failure semantics
//
// The two notification channels are independent: a step that exhausts its
// retry budget closes FAILED, but the remaining steps still execute. The
// run succeeds only if every step succeeded; otherwise the result carries
// the failed step names and their errors. Run-level timeouts and
// cancellation mark outstanding steps failed with a distinguishable reason.
package contactflow
