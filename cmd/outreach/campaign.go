package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"outreach/internal/activity"
	"outreach/internal/config"
	"outreach/internal/contact"
	"outreach/internal/delay"
	"outreach/internal/dispatch"
	"outreach/internal/executor"
	"outreach/internal/metrics"
	"outreach/internal/progress"
	"outreach/internal/ratelimit"
)

// campaignFlags are the per-run flags shared by send and follow.
type campaignFlags struct {
	dryRun   bool
	resume   bool
	limit    int
	minDelay int
	maxDelay int
}

func addCampaignFlags(cmd *cobra.Command, f *campaignFlags) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "run all decision logic without calling the external service")
	cmd.Flags().BoolVar(&f.resume, "resume", true, "load existing progress; --resume=false resets the store first")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "cap the number of targets processed this run (0 = all)")
	cmd.Flags().IntVar(&f.minDelay, "min-delay", -1, "override min_delay_seconds")
	cmd.Flags().IntVar(&f.maxDelay, "max-delay", -1, "override max_delay_seconds")
}

// campaignRun is everything executeCampaign needs for one campaign type.
type campaignRun struct {
	name         string
	limits       ratelimit.Limits
	maxRetries   int
	minDelay     time.Duration
	maxDelay     time.Duration
	progressPath string
	logPath      string
	targets      []contact.Target
	exec         executor.Executor
}

// executeCampaign wires the store, rate controller, delay generator, and
// dispatch loop, then runs until drained, stopped, or aborted.
func executeCampaign(cfg *config.Config, run campaignRun, flags campaignFlags, logger *slog.Logger) error {
	runID := uuid.NewString()[:8]
	logger = logger.With("campaign", run.name, "run_id", runID)

	if flags.minDelay >= 0 {
		run.minDelay = time.Duration(flags.minDelay) * time.Second
	}
	if flags.maxDelay >= 0 {
		run.maxDelay = time.Duration(flags.maxDelay) * time.Second
	}

	store, err := progress.Open(run.progressPath)
	if err != nil {
		if errors.Is(err, progress.ErrCorruptState) {
			return fmt.Errorf("%w: %v", dispatch.ErrAborted, err)
		}
		return err
	}
	defer store.Close()

	if !flags.resume {
		logger.Info("resume disabled, resetting progress store", "path", run.progressPath)
		if err := store.Reset(); err != nil {
			return fmt.Errorf("failed to reset progress store: %w", err)
		}
	}

	counter, err := store.Counter()
	if err != nil {
		if errors.Is(err, progress.ErrCorruptState) {
			return fmt.Errorf("%w: %v", dispatch.ErrAborted, err)
		}
		return err
	}
	control := ratelimit.Restore(run.limits, counter)

	act, err := activity.Open(run.logPath)
	if err != nil {
		return err
	}
	defer act.Close()

	loop := dispatch.New(store, control, delay.New(run.minDelay, run.maxDelay), run.exec, dispatch.Config{
		Campaign:   run.name,
		MaxRetries: run.maxRetries,
		Limit:      flags.limit,
	}, logger)
	loop.SetActivityLog(act)

	if cfg.Metrics.Enabled {
		m := metrics.New()
		loop.SetMetrics(m)
		srv := metrics.NewServer(m, cfg.Metrics.ListenAddr, logger.With("component", "metrics"))
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := "live"
	if flags.dryRun {
		mode = "dry-run"
	}
	logger.Info("campaign starting",
		"targets", len(run.targets),
		"mode", mode,
		"max_per_hour", run.limits.MaxPerHour,
		"max_per_day", run.limits.MaxPerDay,
	)
	act.Printf("%s campaign started (run %s, %d targets, %s)", run.name, runID, len(run.targets), mode)

	summary, err := loop.Run(ctx, run.targets)
	printSummary(run.name, summary, act)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Operator stop: progress is persisted, resuming later is safe.
		logger.Info("campaign stopped by operator")
		act.Printf("%s campaign stopped, progress saved", run.name)
		return nil
	default:
		act.Printf("%s campaign aborted: %v", run.name, err)
		return err
	}
}

func printSummary(name string, summary *dispatch.Summary, act *activity.Logger) {
	fmt.Printf("\n%s campaign summary:\n", name)
	fmt.Printf("  Sent:    %d\n", summary.Sent)
	fmt.Printf("  Failed:  %d\n", summary.Failed)
	fmt.Printf("  Skipped: %d\n", summary.Skipped)
	fmt.Printf("  Retries: %d\n", summary.Retries)
	act.Printf("%s summary: sent=%d failed=%d skipped=%d retries=%d",
		name, summary.Sent, summary.Failed, summary.Skipped, summary.Retries)
}

// loadContacts reads and genre-filters the contact list.
func loadContacts(cfg *config.Config, include, exclude []string) ([]contact.Contact, error) {
	contacts, err := contact.LoadCSV(cfg.Files.Contacts)
	if err != nil {
		return nil, err
	}
	return contact.FilterGenres(contacts, include, exclude), nil
}

// setupLogger creates a logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
