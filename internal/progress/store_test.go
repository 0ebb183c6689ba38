package progress

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"outreach/internal/executor"
	"outreach/internal/ratelimit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndIsDone(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	outcome := executor.Outcome{
		Status:    executor.StatusSent,
		MessageID: "msg-1",
		Attempts:  1,
		Timestamp: now,
	}
	counter := ratelimit.Counter{HourlyCount: 1, DailyCount: 1, HourStart: now, DayStart: now}

	if err := store.Record("curator@example.com", outcome, counter); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	done, err := store.IsDone("curator@example.com")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if !done {
		t.Error("sent target should be done")
	}

	done, err = store.IsDone("other@example.com")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if done {
		t.Error("unrecorded target should not be done")
	}
}

func TestTerminalOutcomes(t *testing.T) {
	store := openTestStore(t)
	counter := ratelimit.Counter{}

	tests := []struct {
		id      string
		outcome executor.Outcome
		done    bool
	}{
		{"sent@example.com", executor.Outcome{Status: executor.StatusSent}, true},
		{"skipped@example.com", executor.Outcome{Status: executor.StatusSkipped, Reason: "already_following"}, true},
		{"bounced@example.com", executor.Outcome{Status: executor.StatusFailed, Reason: "invalid_address", Permanent: true}, true},
		{"flaky@example.com", executor.Outcome{Status: executor.StatusFailed, Reason: "retries_exhausted"}, false},
	}

	for _, tt := range tests {
		if err := store.Record(tt.id, tt.outcome, counter); err != nil {
			t.Fatalf("Record(%s) failed: %v", tt.id, err)
		}
		done, err := store.IsDone(tt.id)
		if err != nil {
			t.Fatalf("IsDone(%s) failed: %v", tt.id, err)
		}
		if done != tt.done {
			t.Errorf("IsDone(%s) = %v, want %v", tt.id, done, tt.done)
		}
	}
}

func TestCounterRoundTrip(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	counter, err := store.Counter()
	if err != nil {
		t.Fatalf("Counter failed: %v", err)
	}
	if counter.HourlyCount != 0 || !counter.HourStart.IsZero() {
		t.Errorf("fresh store should have zero counter, got %+v", counter)
	}

	want := ratelimit.Counter{HourlyCount: 3, DailyCount: 17, HourStart: now, DayStart: now.Add(-2 * time.Hour)}
	outcome := executor.Outcome{Status: executor.StatusSent, Timestamp: now}
	if err := store.Record("a@example.com", outcome, want); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	counter, err = store.Counter()
	if err != nil {
		t.Fatalf("Counter failed: %v", err)
	}
	if counter.HourlyCount != 3 || counter.DailyCount != 17 {
		t.Errorf("unexpected counter: %+v", counter)
	}
	if !counter.HourStart.Equal(want.HourStart) {
		t.Errorf("expected HourStart=%v, got %v", want.HourStart, counter.HourStart)
	}
}

func TestReopenPreservesProgress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.db")
	now := time.Now()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	outcome := executor.Outcome{Status: executor.StatusSent, Timestamp: now}
	counter := ratelimit.Counter{HourlyCount: 1, DailyCount: 1, HourStart: now, DayStart: now}
	if err := store.Record("curator@example.com", outcome, counter); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	done, err := reopened.IsDone("curator@example.com")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if !done {
		t.Error("progress should survive reopen")
	}

	c, err := reopened.Counter()
	if err != nil {
		t.Fatalf("Counter failed: %v", err)
	}
	if c.HourlyCount != 1 {
		t.Errorf("counter should survive reopen, got %+v", c)
	}
}

func TestCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	if err := os.WriteFile(path, []byte("this is not a bolt database"), 0600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected error opening corrupt store")
	}
	if !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestReset(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	outcome := executor.Outcome{Status: executor.StatusSent, Timestamp: now}
	counter := ratelimit.Counter{HourlyCount: 5, DailyCount: 5, HourStart: now, DayStart: now}
	if err := store.Record("curator@example.com", outcome, counter); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	done, err := store.IsDone("curator@example.com")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if done {
		t.Error("reset store should have no outcomes")
	}

	c, err := store.Counter()
	if err != nil {
		t.Fatalf("Counter failed: %v", err)
	}
	if c.HourlyCount != 0 {
		t.Errorf("reset store should have zero counter, got %+v", c)
	}
}

func TestMarkFailedAndSummarize(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	counter := ratelimit.Counter{HourlyCount: 2, DailyCount: 2, HourStart: now, DayStart: now}

	outcomes := map[string]executor.Outcome{
		"a@example.com": {Status: executor.StatusSent},
		"b@example.com": {Status: executor.StatusSent},
		"c@example.com": {Status: executor.StatusSkipped, Reason: "already_following"},
	}
	for id, o := range outcomes {
		if err := store.Record(id, o, counter); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if err := store.MarkFailed("d@example.com", "bounced", true, now); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	done, err := store.IsDone("d@example.com")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if !done {
		t.Error("permanently failed target should be done")
	}

	sum, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if sum.Sent != 2 || sum.Skipped != 1 || sum.Failed != 1 || sum.PermanentFailed != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.Counter.HourlyCount != 2 {
		t.Errorf("summary should carry counter state, got %+v", sum.Counter)
	}
}
