// Package progress is the durable record of a campaign: which targets have
// been processed and the rate-controller window state. The store is the
// sole source of truth across restarts; in-memory state is never trusted
// after a crash.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"outreach/internal/executor"
	"outreach/internal/ratelimit"
)

var (
	bucketOutcomes = []byte("outcomes")
	bucketCounters = []byte("counters")

	counterKey = []byte("campaign")
)

// ErrCorruptState marks a persisted record that cannot be parsed. Callers
// must abort rather than silently discard progress: a discarded store
// risks duplicate outreach.
var ErrCorruptState = errors.New("progress store corrupt")

// Store persists target outcomes and counter state in a bbolt database.
// Every write commits in its own transaction, so a kill at any point loses
// at most the action in flight and never yields a half-written store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path. An existing file that cannot be
// opened or decoded fails with ErrCorruptState.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory: %w", err)
	}

	existed := false
	if _, err := os.Stat(path); err == nil {
		existed = true
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		if existed {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOutcomes, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		if existed {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes the target's outcome and the counter snapshot in a single
// transaction. A target identity holds at most one outcome; recording
// again overwrites (used when a retried target reaches a terminal state).
func (s *Store) Record(targetID string, outcome executor.Outcome, counter ratelimit.Counter) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		outcomeData, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		if err := tx.Bucket(bucketOutcomes).Put([]byte(targetID), outcomeData); err != nil {
			return fmt.Errorf("failed to store outcome: %w", err)
		}

		counterData, err := json.Marshal(counter)
		if err != nil {
			return fmt.Errorf("failed to marshal counter: %w", err)
		}
		if err := tx.Bucket(bucketCounters).Put(counterKey, counterData); err != nil {
			return fmt.Errorf("failed to store counter: %w", err)
		}
		return nil
	})
}

// Outcome returns the recorded outcome for a target, or ok=false if the
// target has never been recorded.
func (s *Store) Outcome(targetID string) (executor.Outcome, bool, error) {
	var outcome executor.Outcome
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketOutcomes).Get([]byte(targetID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &outcome); err != nil {
			return fmt.Errorf("%w: outcome for %s: %v", ErrCorruptState, targetID, err)
		}
		found = true
		return nil
	})
	return outcome, found, err
}

// IsDone reports whether the target already has a terminal outcome: sent,
// skipped, or failed with a permanent reason.
func (s *Store) IsDone(targetID string) (bool, error) {
	outcome, found, err := s.Outcome(targetID)
	if err != nil {
		return false, err
	}
	return found && outcome.Terminal(), nil
}

// Outcomes returns the full target → outcome mapping.
func (s *Store) Outcomes() (map[string]executor.Outcome, error) {
	outcomes := make(map[string]executor.Outcome)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOutcomes).ForEach(func(k, v []byte) error {
			var outcome executor.Outcome
			if err := json.Unmarshal(v, &outcome); err != nil {
				return fmt.Errorf("%w: outcome for %s: %v", ErrCorruptState, k, err)
			}
			outcomes[string(k)] = outcome
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Counter returns the persisted rate-controller state, zero-valued on a
// fresh store.
func (s *Store) Counter() (ratelimit.Counter, error) {
	var counter ratelimit.Counter

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCounters).Get(counterKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &counter); err != nil {
			return fmt.Errorf("%w: counter state: %v", ErrCorruptState, err)
		}
		return nil
	})
	return counter, err
}

// Reset drops all recorded outcomes and counter state. Used when a run is
// started with resume disabled and by the progress reset command.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOutcomes, bucketCounters} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkFailed records a failure outcome for a target without touching the
// counter state. Used for out-of-band reconciliation, e.g. marking bounced
// addresses permanently failed so they are never contacted again.
func (s *Store) MarkFailed(targetID, reason string, permanent bool, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		outcome := executor.Outcome{
			Status:    executor.StatusFailed,
			Reason:    reason,
			Permanent: permanent,
			Timestamp: now,
		}
		data, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		return tx.Bucket(bucketOutcomes).Put([]byte(targetID), data)
	})
}

// Summary aggregates recorded outcomes for operator reporting.
type Summary struct {
	Sent            int
	Failed          int
	PermanentFailed int
	Skipped         int
	Total           int
	Counter         ratelimit.Counter
}

// Summarize computes outcome counts and the current counter state.
func (s *Store) Summarize() (*Summary, error) {
	outcomes, err := s.Outcomes()
	if err != nil {
		return nil, err
	}
	counter, err := s.Counter()
	if err != nil {
		return nil, err
	}

	sum := &Summary{Total: len(outcomes), Counter: counter}
	for _, o := range outcomes {
		switch o.Status {
		case executor.StatusSent:
			sum.Sent++
		case executor.StatusFailed:
			sum.Failed++
			if o.Permanent {
				sum.PermanentFailed++
			}
		case executor.StatusSkipped:
			sum.Skipped++
		}
	}
	return sum, nil
}
