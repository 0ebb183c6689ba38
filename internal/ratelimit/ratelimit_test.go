package ratelimit

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecideAllowsUnderLimit(t *testing.T) {
	c := New(Limits{MaxPerHour: 2, MaxPerDay: 10})

	d := c.Decide(base)
	if !d.Allowed {
		t.Fatal("fresh controller should allow")
	}

	c.Record(base)
	if d := c.Decide(base); !d.Allowed {
		t.Error("one action under a limit of 2 should allow")
	}
}

func TestDecideHourlyLimit(t *testing.T) {
	c := New(Limits{MaxPerHour: 2, MaxPerDay: 10})
	c.Record(base)
	c.Record(base.Add(time.Minute))

	d := c.Decide(base.Add(2 * time.Minute))
	if d.Allowed {
		t.Fatal("should be denied at hourly limit")
	}
	if d.LimitedBy != WindowHour {
		t.Errorf("expected hour window, got %s", d.LimitedBy)
	}
	want := base.Add(time.Hour)
	if !d.WaitUntil.Equal(want) {
		t.Errorf("expected WaitUntil=%v, got %v", want, d.WaitUntil)
	}
}

func TestDecideDailyLimit(t *testing.T) {
	c := New(Limits{MaxPerHour: 0, MaxPerDay: 2})
	c.Record(base)
	c.Record(base)

	d := c.Decide(base.Add(time.Minute))
	if d.Allowed {
		t.Fatal("should be denied at daily limit")
	}
	if d.LimitedBy != WindowDay {
		t.Errorf("expected day window, got %s", d.LimitedBy)
	}
	want := base.Add(24 * time.Hour)
	if !d.WaitUntil.Equal(want) {
		t.Errorf("expected WaitUntil=%v, got %v", want, d.WaitUntil)
	}
}

func TestNearerWindowWins(t *testing.T) {
	c := New(Limits{MaxPerHour: 1, MaxPerDay: 1})
	c.Record(base)

	d := c.Decide(base.Add(time.Minute))
	if d.Allowed {
		t.Fatal("should be denied")
	}
	if d.LimitedBy != WindowHour {
		t.Errorf("hour window resets sooner, got %s", d.LimitedBy)
	}
}

func TestWindowResetsAfterPeriod(t *testing.T) {
	c := New(Limits{MaxPerHour: 1, MaxPerDay: 10})
	c.Record(base)

	if d := c.Decide(base.Add(30 * time.Minute)); d.Allowed {
		t.Fatal("should still be denied inside the hour")
	}

	d := c.Decide(base.Add(time.Hour))
	if !d.Allowed {
		t.Error("hour window should have reset")
	}
	if c.Snapshot().HourlyCount != 0 {
		t.Errorf("expected hourly count reset, got %d", c.Snapshot().HourlyCount)
	}
	if c.Snapshot().DailyCount != 1 {
		t.Errorf("daily count should survive hourly reset, got %d", c.Snapshot().DailyCount)
	}
}

func TestStaleWaitUntilTreatedAsProceed(t *testing.T) {
	// Counter restored from disk with a window start far in the past, e.g.
	// after the process slept through the reset boundary.
	counter := Counter{
		HourlyCount: 5,
		DailyCount:  5,
		HourStart:   base.Add(-2 * time.Hour),
		DayStart:    base.Add(-2 * time.Hour),
	}
	c := Restore(Limits{MaxPerHour: 5, MaxPerDay: 100}, counter)

	d := c.Decide(base)
	if !d.Allowed {
		t.Fatalf("expired window should reset and allow, got wait until %v", d.WaitUntil)
	}
}

func TestDisabledLimits(t *testing.T) {
	c := New(Limits{})
	for i := 0; i < 1000; i++ {
		if d := c.Decide(base); !d.Allowed {
			t.Fatal("disabled limits should always allow")
		}
		c.Record(base)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	c := New(Limits{MaxPerHour: 10, MaxPerDay: 10})
	c.Record(base)
	c.Record(base)

	restored := Restore(Limits{MaxPerHour: 10, MaxPerDay: 10}, c.Snapshot())
	snap := restored.Snapshot()
	if snap.HourlyCount != 2 || snap.DailyCount != 2 {
		t.Errorf("unexpected restored counts: %+v", snap)
	}
	if !snap.HourStart.Equal(base) {
		t.Errorf("expected HourStart=%v, got %v", base, snap.HourStart)
	}
}

func TestQuotaInvariant(t *testing.T) {
	c := New(Limits{MaxPerHour: 3, MaxPerDay: 7})
	now := base

	sentInHour := 0
	for i := 0; i < 50; i++ {
		d := c.Decide(now)
		if !d.Allowed {
			now = d.WaitUntil
			sentInHour = 0
			continue
		}
		c.Record(now)
		sentInHour++
		if sentInHour > 3 {
			t.Fatalf("hourly quota exceeded at iteration %d", i)
		}
		snap := c.Snapshot()
		if snap.HourlyCount > 3 || snap.DailyCount > 7 {
			t.Fatalf("counter exceeded limits: %+v", snap)
		}
		now = now.Add(time.Second)
	}
}
