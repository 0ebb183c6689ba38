package executor

import (
	"context"
	"errors"
	"time"

	"outreach/internal/contact"
)

// Status is the terminal classification of one outreach action.
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to a target. Immutable once recorded.
type Outcome struct {
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Permanent bool      `json:"permanent,omitempty"` // meaningful for failed
	MessageID string    `json:"message_id,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the target must never be reprocessed: sent,
// skipped, or failed for a permanent reason. A non-permanent failure
// (including exhausted retries) may be retried on a later run.
func (o Outcome) Terminal() bool {
	switch o.Status {
	case StatusSent, StatusSkipped:
		return true
	case StatusFailed:
		return o.Permanent
	}
	return false
}

// ErrKind classifies an action error for the dispatch loop.
type ErrKind string

const (
	// KindPermanent is a target-level error (address or account does not
	// exist, blocked). Recorded terminal, never retried, no quota consumed.
	KindPermanent ErrKind = "permanent"
	// KindTransient is a service-level error (timeout, temporary quota
	// rejection, verification challenge). Retried a bounded number of times.
	KindTransient ErrKind = "transient"
	// KindFatal is an environment error (repeated authentication failure).
	// The loop aborts entirely.
	KindFatal ErrKind = "fatal"
)

// ActionError is the classified error returned by executors.
type ActionError struct {
	Kind   ErrKind
	Reason string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ActionError) Unwrap() error { return e.Err }

// Classify returns the error kind, assuming transient for unclassified
// errors so the loop backs off rather than burning a target.
func Classify(err error) ErrKind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// Reason extracts the reason code from a classified error.
func Reason(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) && ae.Reason != "" {
		return ae.Reason
	}
	return err.Error()
}

// Result is the success report from one executed action.
type Result struct {
	// MessageID is the provider-assigned identifier, if any.
	MessageID string
	// Skipped marks a no-op success (e.g. already following the account).
	Skipped bool
	// Reason explains a skip.
	Reason string
}

// Executor performs the external action for one target. It must not touch
// the progress store; recording is the dispatch loop's job.
type Executor interface {
	Execute(ctx context.Context, target contact.Target) (*Result, error)
}

// DryRun is the no-op executor substituted in dry-run mode: it reports
// success without calling any external service, so all rate limiting,
// delay, and recording logic still runs.
type DryRun struct{}

func (DryRun) Execute(ctx context.Context, target contact.Target) (*Result, error) {
	return &Result{MessageID: "DRY_RUN"}, nil
}
