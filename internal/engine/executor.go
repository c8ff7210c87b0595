package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mariusgr/contactflow/internal/persistence"
	"github.com/mariusgr/contactflow/pkg/api"
)

// stepExecutor runs a single step to a terminal status, persisting each
// status transition before moving on. Exactly two writes happen per
// execution: pending|failed -> running, then running -> terminal.
type stepExecutor struct {
	runs         persistence.RunStore
	observer     api.Observer
	defaultRetry api.RetryPolicy
}

// Execute drives one step of run to SUCCEEDED or FAILED and records the
// outcome on rec.
//
// A nil return means the step reached a terminal status that is durably
// persisted; whether it succeeded is read from rec.Status. A non-nil return
// is an infrastructure error (persistence failure or CAS conflict) after
// which the step's stored state must not be guessed.
func (x *stepExecutor) Execute(ctx context.Context, run *api.Run, rec *api.StepRecord, step api.StepDefinition) error {
	// A RUNNING record at dispatch time means another executor holds this
	// step right now: crash leftovers are closed by RecoverStuckRuns before
	// a run can be resumed. Refusing here keeps the status CAS meaningful;
	// a RUNNING -> RUNNING transition would always pass it.
	if rec.Status == api.StatusRunning {
		return fmt.Errorf("step %q of run %s is already executing: %w",
			rec.Name, run.ID, persistence.ErrStepStatusConflict)
	}

	policy := x.defaultRetry
	if step.Retry != nil {
		policy = *step.Retry
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := policy.InitialBackoff
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxBackoff := policy.MaxBackoff

	from := rec.Status
	started := time.Now()
	rec.Status = api.StatusRunning
	rec.StartedAt = &started

	if err := x.runs.UpdateStep(run.ID, rec.Name, persistence.StepUpdate{
		From:      from,
		To:        api.StatusRunning,
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		StartedAt: &started,
	}); err != nil {
		rec.Status = from
		return err
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		rec.Attempts++
		x.observer.OnStepStart(ctx, run, rec.Name, rec.Attempts)

		attemptStart := time.Now()
		err := step.Fn(ctx, run.Payload)
		x.observer.OnStepCompleted(ctx, run, rec.Name, rec.Attempts, err, time.Since(attemptStart))

		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		// Non-retryable errors fail fast without consuming the budget.
		if !api.IsRetryable(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(delay):
			}
			if ctx.Err() != nil {
				break
			}

			next := time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && next > maxBackoff {
				backoff = maxBackoff
			} else {
				backoff = next
			}
		}
	}

	finished := time.Now()
	rec.FinishedAt = &finished
	if lastErr == nil {
		rec.Status = api.StatusSucceeded
		rec.LastError = ""
	} else {
		rec.Status = api.StatusFailed
		rec.LastError = lastErr.Error()
	}

	return x.runs.UpdateStep(run.ID, rec.Name, persistence.StepUpdate{
		From:       api.StatusRunning,
		To:         rec.Status,
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		FinishedAt: &finished,
	})
}

// markFailed closes a step that will not be executed (cancellation, timeout,
// crash recovery) with the given reason. Succeeded and already-failed steps
// are left alone.
func (x *stepExecutor) markFailed(run *api.Run, rec *api.StepRecord, reason error) error {
	if rec.Status.Terminal() {
		return nil
	}

	from := rec.Status
	finished := time.Now()
	rec.Status = api.StatusFailed
	rec.LastError = reason.Error()
	rec.FinishedAt = &finished

	return x.runs.UpdateStep(run.ID, rec.Name, persistence.StepUpdate{
		From:       from,
		To:         api.StatusFailed,
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		FinishedAt: &finished,
	})
}
