// Package dispatch runs the throttled, resumable campaign loop. One target
// is ever in flight: the whole point of the rate controller and delay
// generator is to serialize and space out external-facing actions, so no
// parallel dispatch is performed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outreach/internal/activity"
	"outreach/internal/contact"
	"outreach/internal/delay"
	"outreach/internal/executor"
	"outreach/internal/metrics"
	"outreach/internal/progress"
	"outreach/internal/ratelimit"
)

// ErrAborted marks an unrecoverable condition: the loop halted, all
// recorded progress is intact, and the wrapped reason is surfaced to the
// operator.
var ErrAborted = errors.New("campaign aborted")

// Config tunes one campaign run.
type Config struct {
	// Campaign labels logs and metrics ("email", "follow").
	Campaign string
	// MaxRetries bounds the total attempts per target before a transient
	// failure becomes terminal as retries_exhausted.
	MaxRetries int
	// Limit caps the number of targets processed this run. 0 means all.
	Limit int
	// ActionTimeout bounds a single executor call.
	ActionTimeout time.Duration
}

// Summary reports what one run did.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int
	Retries int
}

// Loop orchestrates selection, rate checking, delays, execution, and
// recording for an ordered target list.
type Loop struct {
	store    *progress.Store
	control  *ratelimit.Controller
	delays   *delay.Generator
	exec     executor.Executor
	cfg      Config
	logger   *slog.Logger
	activity *activity.Logger
	metrics  *metrics.Metrics

	// Injectable for tests; default to the wall clock and a
	// context-cancellable timer sleep.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a loop. The rate controller must already carry any counter
// state loaded from the progress store.
func New(store *progress.Store, control *ratelimit.Controller, delays *delay.Generator, exec executor.Executor, cfg Config, logger *slog.Logger) *Loop {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 2 * time.Minute
	}

	return &Loop{
		store:   store,
		control: control,
		delays:  delays,
		exec:    exec,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// SetActivityLog attaches the human-readable per-action log.
func (l *Loop) SetActivityLog(a *activity.Logger) {
	l.activity = a
}

// SetMetrics attaches Prometheus counters.
func (l *Loop) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// Run processes targets in input order, skipping those already done, until
// the list drains, the limit is hit, the context is cancelled, or a fatal
// condition aborts the run. Cancellation is honored at every suspension
// point and never interrupts a store write.
func (l *Loop) Run(ctx context.Context, targets []contact.Target) (*Summary, error) {
	summary := &Summary{}
	attempts := make(map[string]int)

	pending := make([]contact.Target, len(targets))
	copy(pending, targets)

	processed := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if l.cfg.Limit > 0 && processed >= l.cfg.Limit {
			l.logger.Info("target limit reached", "limit", l.cfg.Limit)
			break
		}

		// Selecting.
		target := pending[0]
		pending = pending[1:]

		done, err := l.store.IsDone(target.ID)
		if err != nil {
			return summary, fmt.Errorf("%w: reading progress for %s: %v", ErrAborted, target.ID, err)
		}
		if done {
			l.logger.Debug("target already processed", "target", target.ID)
			continue
		}

		// RateChecking / Waiting.
		if err := l.waitForQuota(ctx); err != nil {
			return summary, err
		}

		// Executing: randomized inter-action delay, then the external call.
		pause := l.delays.Next()
		if pause > 0 {
			l.logger.Debug("delaying before action", "target", target.ID, "delay", pause)
			l.countWait(pause)
			if err := l.sleep(ctx, pause); err != nil {
				return summary, err
			}
		}

		attempts[target.ID]++
		result, execErr := l.execute(ctx, target)

		// Recording.
		switch {
		case execErr == nil && result.Skipped:
			outcome := executor.Outcome{
				Status:    executor.StatusSkipped,
				Reason:    result.Reason,
				Attempts:  attempts[target.ID],
				Timestamp: l.now(),
			}
			if err := l.record(target.ID, outcome); err != nil {
				return summary, err
			}
			summary.Skipped++
			processed++

		case execErr == nil:
			// Counters first, then persistence, so the stored snapshot
			// already includes this action.
			now := l.now()
			l.control.Record(now)
			outcome := executor.Outcome{
				Status:    executor.StatusSent,
				MessageID: result.MessageID,
				Attempts:  attempts[target.ID],
				Timestamp: now,
			}
			if err := l.record(target.ID, outcome); err != nil {
				return summary, err
			}
			summary.Sent++
			processed++

		default:
			kind := executor.Classify(execErr)
			reason := executor.Reason(execErr)

			switch kind {
			case executor.KindFatal:
				l.logger.Error("fatal error, aborting campaign",
					"target", target.ID,
					"reason", reason,
				)
				return summary, fmt.Errorf("%w: %s", ErrAborted, reason)

			case executor.KindPermanent:
				// The action did not consume quota; counters stay put.
				outcome := executor.Outcome{
					Status:    executor.StatusFailed,
					Reason:    reason,
					Permanent: true,
					Attempts:  attempts[target.ID],
					Timestamp: l.now(),
				}
				if err := l.record(target.ID, outcome); err != nil {
					return summary, err
				}
				summary.Failed++
				processed++

			default: // transient
				if attempts[target.ID] < l.cfg.MaxRetries {
					l.logger.Warn("transient failure, re-enqueueing",
						"target", target.ID,
						"reason", reason,
						"attempt", attempts[target.ID],
						"max_retries", l.cfg.MaxRetries,
					)
					if l.metrics != nil {
						l.metrics.RetriesTotal.Inc()
					}
					summary.Retries++
					pending = append(pending, target)
					continue
				}

				outcome := executor.Outcome{
					Status:    executor.StatusFailed,
					Reason:    "retries_exhausted",
					Attempts:  attempts[target.ID],
					Timestamp: l.now(),
				}
				if err := l.record(target.ID, outcome); err != nil {
					return summary, err
				}
				summary.Failed++
				processed++
			}
		}
	}

	l.logger.Info("campaign drained",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"retries", summary.Retries,
	)
	return summary, nil
}

// waitForQuota blocks, cancellably, until the rate controller allows the
// next action.
func (l *Loop) waitForQuota(ctx context.Context) error {
	for {
		decision := l.control.Decide(l.now())
		if decision.Allowed {
			return nil
		}

		wait := decision.WaitUntil.Sub(l.now())
		l.logger.Info("rate window exhausted, waiting",
			"window", string(decision.LimitedBy),
			"until", decision.WaitUntil,
			"wait", wait,
		)
		if l.activity != nil {
			l.activity.Printf("rate limit reached (%s window), waiting until %s",
				decision.LimitedBy, decision.WaitUntil.Format("2006-01-02 15:04:05"))
		}
		if l.metrics != nil {
			l.metrics.RateLimitWaitsTotal.WithLabelValues(string(decision.LimitedBy)).Inc()
		}
		l.countWait(wait)

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (l *Loop) execute(ctx context.Context, target contact.Target) (*executor.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, l.cfg.ActionTimeout)
	defer cancel()
	return l.exec.Execute(execCtx, target)
}

// record persists a terminal outcome together with the current counter
// snapshot, logs it, and updates metrics. A store failure aborts the run.
func (l *Loop) record(targetID string, outcome executor.Outcome) error {
	if err := l.store.Record(targetID, outcome, l.control.Snapshot()); err != nil {
		return fmt.Errorf("%w: recording %s: %v", ErrAborted, targetID, err)
	}

	l.logger.Info("action recorded",
		"target", targetID,
		"outcome", string(outcome.Status),
		"reason", outcome.Reason,
		"attempts", outcome.Attempts,
	)
	if l.activity != nil {
		l.activity.Action(targetID, string(outcome.Status), outcome.Reason)
	}
	if l.metrics != nil {
		l.metrics.ActionsTotal.WithLabelValues(l.cfg.Campaign, string(outcome.Status)).Inc()
	}
	return nil
}

func (l *Loop) countWait(d time.Duration) {
	if l.metrics != nil && d > 0 {
		l.metrics.WaitSecondsTotal.Add(d.Seconds())
	}
}

// sleepContext suspends for d or until the context is cancelled, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
