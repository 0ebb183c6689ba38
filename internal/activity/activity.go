// Package activity writes the human-readable, append-only campaign log:
// one timestamped line per action, for manual reconciliation alongside the
// structured log.
package activity

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger appends timestamped lines to a log file. An empty path produces a
// logger that discards everything.
type Logger struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// Open opens the activity log for appending, creating it if needed.
func Open(path string) (*Logger, error) {
	l := &Logger{now: time.Now}
	if path == "" {
		return l, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	l.f = f
	return l, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// Printf appends one formatted line with a local timestamp prefix.
func (l *Logger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return
	}

	line := fmt.Sprintf("[%s] %s\n", l.now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	// A failed log write must never stop the campaign.
	l.f.WriteString(line)
}

// Action logs one dispatched action: target identity, outcome, and reason.
func (l *Logger) Action(targetID, outcome, reason string) {
	if reason != "" {
		l.Printf("%s %s (%s)", targetID, outcome, reason)
		return
	}
	l.Printf("%s %s", targetID, outcome)
}
