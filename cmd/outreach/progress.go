package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"outreach/internal/config"
	"outreach/internal/contact"
	"outreach/internal/executor"
	"outreach/internal/progress"
)

var (
	progressCampaign string

	markReason    string
	markPermanent bool
	markFromFile  string
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and maintain campaign progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a campaign progress summary",
	RunE:  runProgressShow,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard all recorded progress for a campaign",
	RunE:  runProgressReset,
}

var progressMarkFailedCmd = &cobra.Command{
	Use:   "mark-failed [target...]",
	Short: "Record failures from an external report",
	Long: `Mark targets as failed without running the campaign, e.g. addresses
from a bounce report. With --permanent the targets are never contacted
again on later runs.`,
	RunE: runProgressMarkFailed,
}

func init() {
	progressCmd.PersistentFlags().StringVar(&progressCampaign, "campaign", "email", "campaign store to operate on (email or follow)")

	progressMarkFailedCmd.Flags().StringVar(&markReason, "reason", "bounced", "failure reason code")
	progressMarkFailedCmd.Flags().BoolVar(&markPermanent, "permanent", false, "treat as permanent (never retried)")
	progressMarkFailedCmd.Flags().StringVar(&markFromFile, "file", "", "read additional targets from a file, one per line")

	progressCmd.AddCommand(progressShowCmd, progressResetCmd, progressMarkFailedCmd)
}

func progressPath(cfg *config.Config) (string, error) {
	switch progressCampaign {
	case "email":
		return cfg.Files.EmailProgress, nil
	case "follow":
		return cfg.Files.FollowProgress, nil
	default:
		return "", fmt.Errorf("unknown campaign %q (want email or follow)", progressCampaign)
	}
}

func openProgress(cfg *config.Config) (*progress.Store, error) {
	path, err := progressPath(cfg)
	if err != nil {
		return nil, err
	}
	return progress.Open(path)
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openProgress(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := store.Summarize()
	if err != nil {
		return err
	}

	fmt.Printf("%s campaign progress:\n", progressCampaign)
	fmt.Printf("  Sent:    %d\n", sum.Sent)
	fmt.Printf("  Failed:  %d (%d permanent)\n", sum.Failed, sum.PermanentFailed)
	fmt.Printf("  Skipped: %d\n", sum.Skipped)
	fmt.Printf("  Total:   %d\n", sum.Total)

	if !sum.Counter.HourStart.IsZero() {
		fmt.Printf("  Hourly window: %d since %s\n",
			sum.Counter.HourlyCount, sum.Counter.HourStart.Format(time.RFC3339))
	}
	if !sum.Counter.DayStart.IsZero() {
		fmt.Printf("  Daily window:  %d since %s\n",
			sum.Counter.DailyCount, sum.Counter.DayStart.Format(time.RFC3339))
	}

	outcomes, err := store.Outcomes()
	if err != nil {
		return err
	}
	var failed []string
	for id, o := range outcomes {
		if o.Status == executor.StatusFailed {
			failed = append(failed, fmt.Sprintf("%s (%s)", id, o.Reason))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		fmt.Println("  Failed targets:")
		for _, line := range failed {
			fmt.Printf("    %s\n", line)
		}
	}

	return nil
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openProgress(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(); err != nil {
		return err
	}
	fmt.Printf("%s campaign progress reset\n", progressCampaign)
	return nil
}

func runProgressMarkFailed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets := make([]string, 0, len(args))
	for _, arg := range args {
		if id := contact.NormalizeID(arg); id != "" {
			targets = append(targets, id)
		}
	}
	if markFromFile != "" {
		fromFile, err := readTargetFile(markFromFile)
		if err != nil {
			return err
		}
		targets = append(targets, fromFile...)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets given (pass them as arguments or via --file)")
	}

	store, err := openProgress(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	now := time.Now()
	for _, id := range targets {
		if err := store.MarkFailed(id, markReason, markPermanent, now); err != nil {
			return err
		}
	}

	fmt.Printf("marked %d target(s) failed (reason=%s permanent=%v)\n", len(targets), markReason, markPermanent)
	return nil
}

func readTargetFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target file: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if id := contact.NormalizeID(line); id != "" {
			targets = append(targets, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target file: %w", err)
	}
	return targets, nil
}
