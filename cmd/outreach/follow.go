package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"outreach/internal/config"
	"outreach/internal/contact"
	"outreach/internal/executor"
	"outreach/internal/ratelimit"
	"outreach/internal/social"
)

var followFlags campaignFlags

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Run the social follow campaign",
	Long: `Follow one social account per contact through the configured follow
API, throttled by the configured delays and hourly/daily limits. Progress
persists across runs; already-followed accounts are skipped.`,
	RunE: runFollow,
}

func init() {
	addCampaignFlags(followCmd, &followFlags)
}

func runFollow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	contacts, err := loadContacts(cfg, cfg.Follow.GenreKeywords, cfg.Follow.ExcludeGenres)
	if err != nil {
		return err
	}
	targets := contact.FollowTargets(contacts)
	if len(targets) == 0 {
		fmt.Println("No contacts with social accounts to process.")
		return nil
	}

	exec, err := buildFollowExecutor(cfg, followFlags, logger)
	if err != nil {
		return err
	}

	return executeCampaign(cfg, campaignRun{
		name: "follow",
		limits: ratelimit.Limits{
			MaxPerHour: cfg.Follow.MaxPerHour,
			MaxPerDay:  cfg.Follow.MaxPerDay,
		},
		maxRetries:   cfg.Follow.MaxRetries,
		minDelay:     time.Duration(cfg.Follow.MinDelaySeconds) * time.Second,
		maxDelay:     time.Duration(cfg.Follow.MaxDelaySeconds) * time.Second,
		progressPath: cfg.Files.FollowProgress,
		logPath:      cfg.Files.FollowLog,
		targets:      targets,
		exec:         exec,
	}, followFlags, logger)
}

// buildFollowExecutor returns the dry-run stub or the real API client.
func buildFollowExecutor(cfg *config.Config, flags campaignFlags, logger *slog.Logger) (executor.Executor, error) {
	if flags.dryRun {
		return executor.DryRun{}, nil
	}

	if cfg.Follow.APIURL == "" {
		return nil, fmt.Errorf("follow api_url is required (or use --dry-run)")
	}
	token := os.Getenv(cfg.Follow.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("follow API token not set: export %s or add it to .env", cfg.Follow.TokenEnv)
	}

	return social.NewFollower(social.Config{
		BaseURL: cfg.Follow.APIURL,
		Token:   token,
	}, logger.With("component", "follower")), nil
}
