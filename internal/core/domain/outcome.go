package domain

import "time"

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeFatal
)

// Outcome is the tagged result of one job execution. The scheduler maps a
// retryable failure to a delayed re-enqueue; workers never sleep in-process
// and never throw to signal a retry.
type Outcome struct {
	kind  outcomeKind
	Delay time.Duration
	Err   error
}

// Success reports the job is done (including "nothing to do" no-ops).
func Success() Outcome {
	return Outcome{kind: outcomeSuccess}
}

// RetryableFailure asks the scheduler to re-enqueue the job after delay.
func RetryableFailure(delay time.Duration, err error) Outcome {
	return Outcome{kind: outcomeRetryable, Delay: delay, Err: err}
}

// FatalFailure reports a permanent failure; the job must not be re-enqueued.
func FatalFailure(err error) Outcome {
	return Outcome{kind: outcomeFatal, Err: err}
}

func (o Outcome) IsSuccess() bool   { return o.kind == outcomeSuccess }
func (o Outcome) IsRetryable() bool { return o.kind == outcomeRetryable }
func (o Outcome) IsFatal() bool     { return o.kind == outcomeFatal }
