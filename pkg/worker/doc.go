// Package worker provides the queue consumer that drives contactflow runs.
//
// Workers pull submission tasks from a task queue and execute them through
// an Engine. Each task carries a stable run id assigned at enqueue time, so
// at-least-once queue delivery maps onto the engine's idempotent resume:
// a redelivered task re-executes only steps that have not durably succeeded.
//
// Workers are long-lived components that typically run in dedicated
// goroutines. Multiple workers can safely operate on the same queue.
//
// Most applications construct workers via helper functions in the
// contactflow package (LocalRunner, NewSQLiteBundle), which wire engines
// and queues together with sensible defaults.
package worker
