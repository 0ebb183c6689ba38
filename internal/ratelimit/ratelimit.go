// Package ratelimit implements the rolling-window rate controller for
// outbound outreach actions. Two independent windows (1 hour, 24 hours)
// each hold a (count, window_start) pair; a window resets to zero when its
// start-plus-period boundary is crossed. The controller only computes
// decisions; it never performs I/O and never fails.
package ratelimit

import (
	"time"
)

// Window identifies which rolling window limited an action.
type Window string

const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
)

const (
	hourPeriod = time.Hour
	dayPeriod  = 24 * time.Hour
)

// Limits holds the configured maxima. A value <= 0 disables that window.
type Limits struct {
	MaxPerHour int
	MaxPerDay  int
}

// Counter is the persistable window state. The progress store owns its
// durability; the controller owns its semantics.
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Decision is the answer to "may the next action proceed now".
type Decision struct {
	Allowed   bool
	WaitUntil time.Time // valid when !Allowed
	LimitedBy Window    // which window is exhausted
}

// Controller tracks per-hour and per-day action counts. Callers supply the
// current time on every query, so the controller is testable with any
// clock.
type Controller struct {
	limits  Limits
	counter Counter
}

// New creates a controller with zeroed counters.
func New(limits Limits) *Controller {
	return &Controller{limits: limits}
}

// Restore creates a controller from persisted counter state, as loaded
// from the progress store on resume.
func Restore(limits Limits, counter Counter) *Controller {
	return &Controller{limits: limits, counter: counter}
}

// Decide reports whether an action may proceed at time now, or the time at
// which the nearer exhausted window resets. It never increments counters.
func (c *Controller) Decide(now time.Time) Decision {
	c.resetExpired(now)

	var waitUntil time.Time
	var limitedBy Window

	if c.limits.MaxPerHour > 0 && c.counter.HourlyCount >= c.limits.MaxPerHour {
		waitUntil = c.counter.HourStart.Add(hourPeriod)
		limitedBy = WindowHour
	}
	if c.limits.MaxPerDay > 0 && c.counter.DailyCount >= c.limits.MaxPerDay {
		dayReset := c.counter.DayStart.Add(dayPeriod)
		if waitUntil.IsZero() || dayReset.Before(waitUntil) {
			waitUntil = dayReset
			limitedBy = WindowDay
		}
	}

	if waitUntil.IsZero() {
		return Decision{Allowed: true}
	}

	// A wait time at or before now means the window already expired (clock
	// skew, long processing gap): reset it and proceed.
	if !waitUntil.After(now) {
		c.resetWindow(limitedBy, now)
		return c.Decide(now)
	}

	return Decision{WaitUntil: waitUntil, LimitedBy: limitedBy}
}

// Record counts one confirmed action against both windows. Call only after
// the executor reports success, never speculatively.
func (c *Controller) Record(now time.Time) {
	c.resetExpired(now)

	if c.counter.HourStart.IsZero() {
		c.counter.HourStart = now
	}
	if c.counter.DayStart.IsZero() {
		c.counter.DayStart = now
	}

	c.counter.HourlyCount++
	c.counter.DailyCount++
}

// Snapshot returns the current counter state for persistence.
func (c *Controller) Snapshot() Counter {
	return c.counter
}

func (c *Controller) resetExpired(now time.Time) {
	if !c.counter.HourStart.IsZero() && now.Sub(c.counter.HourStart) >= hourPeriod {
		c.resetWindow(WindowHour, now)
	}
	if !c.counter.DayStart.IsZero() && now.Sub(c.counter.DayStart) >= dayPeriod {
		c.resetWindow(WindowDay, now)
	}
}

func (c *Controller) resetWindow(w Window, now time.Time) {
	switch w {
	case WindowHour:
		c.counter.HourlyCount = 0
		c.counter.HourStart = now
	case WindowDay:
		c.counter.DailyCount = 0
		c.counter.DayStart = now
	}
}
