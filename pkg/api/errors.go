package api

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRunCanceled marks steps skipped because cancellation was requested
	// for their run.
	ErrRunCanceled = errors.New("run canceled")

	// ErrRunInterrupted marks steps of runs that were left RUNNING by a
	// crashed process and recovered on startup.
	ErrRunInterrupted = errors.New("run interrupted by restart")
)

// SenderError is the typed failure of a notification send. Retryable
// distinguishes transient transport failures (timeouts, 5xx, rate limits)
// from permanent ones (vendor-side validation, auth).
type SenderError struct {
	Channel   string
	Retryable bool
	Message   string
	Err       error
}

func (e *SenderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s sender: %s", e.Channel, msg)
}

func (e *SenderError) Unwrap() error {
	return e.Err
}

// NewRetryableSenderError builds a SenderError for a transient failure.
func NewRetryableSenderError(channel, message string, err error) *SenderError {
	return &SenderError{Channel: channel, Retryable: true, Message: message, Err: err}
}

// NewPermanentSenderError builds a SenderError for a failure that retrying
// cannot fix.
func NewPermanentSenderError(channel, message string, err error) *SenderError {
	return &SenderError{Channel: channel, Retryable: false, Message: message, Err: err}
}

// IsRetryable reports whether the step executor may re-attempt after err.
// SenderError carries its own classification. Context errors are never
// retried. Any other error is treated as transient, matching how unknown
// transport failures behave.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SenderError
	if errors.As(err, &se) {
		return se.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
