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
	"outreach/internal/mailer"
	"outreach/internal/ratelimit"
)

var sendFlags campaignFlags

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Run the email campaign",
	Long: `Send one email per contact through the configured SMTP submission
endpoint, throttled by the configured delays and hourly/daily limits.
Progress persists across runs; already-contacted addresses are skipped.`,
	RunE: runSend,
}

func init() {
	addCampaignFlags(sendCmd, &sendFlags)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	contacts, err := loadContacts(cfg, cfg.Email.GenreKeywords, cfg.Email.ExcludeGenres)
	if err != nil {
		return err
	}
	targets := contact.EmailTargets(contacts)
	if len(targets) == 0 {
		fmt.Println("No contacts with email addresses to process.")
		return nil
	}

	exec, err := buildEmailExecutor(cfg, sendFlags, logger)
	if err != nil {
		return err
	}

	return executeCampaign(cfg, campaignRun{
		name: "email",
		limits: ratelimit.Limits{
			MaxPerHour: cfg.Email.MaxPerHour,
			MaxPerDay:  cfg.Email.MaxPerDay,
		},
		maxRetries:   cfg.Email.MaxRetries,
		minDelay:     time.Duration(cfg.Email.MinDelaySeconds) * time.Second,
		maxDelay:     time.Duration(cfg.Email.MaxDelaySeconds) * time.Second,
		progressPath: cfg.Files.EmailProgress,
		logPath:      cfg.Files.EmailLog,
		targets:      targets,
		exec:         exec,
	}, sendFlags, logger)
}

// buildEmailExecutor returns the dry-run stub or the real SMTP sender.
func buildEmailExecutor(cfg *config.Config, flags campaignFlags, logger *slog.Logger) (executor.Executor, error) {
	if flags.dryRun {
		return executor.DryRun{}, nil
	}

	if cfg.SMTP.Host == "" || cfg.SMTP.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required (or use --dry-run)")
	}
	password := os.Getenv(cfg.SMTP.PasswordEnv)
	if password == "" {
		return nil, fmt.Errorf("smtp password not set: export %s or add it to .env", cfg.SMTP.PasswordEnv)
	}

	body, err := readBody(cfg.Email.BodyFile)
	if err != nil {
		return nil, err
	}

	return mailer.NewSender(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: password,
		From:     cfg.SMTP.From,
		CC:       cfg.SMTP.CC,
	}, mailer.BasicComposer{
		Subject: cfg.Email.Subject,
		Body:    body,
	}, logger.With("component", "mailer")), nil
}

const defaultEmailBody = `Hi {{name}},

I came across {{playlist}} and think my latest track could be a good fit.
Would you consider it for the playlist?

Thanks for your time!`

// readBody loads the email body text, falling back to the built-in
// default when no body file is configured.
func readBody(path string) (string, error) {
	if path == "" {
		return defaultEmailBody, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read body file: %w", err)
	}
	return string(data), nil
}
