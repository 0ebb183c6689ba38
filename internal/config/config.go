package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Email   EmailConfig   `yaml:"email"`
	Follow  FollowConfig  `yaml:"follow"`
	Files   FilesConfig   `yaml:"files"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EmailConfig contains the email campaign settings.
type EmailConfig struct {
	MinDelaySeconds int `yaml:"min_delay_seconds"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
	MaxPerHour      int `yaml:"max_per_hour"`
	MaxPerDay       int `yaml:"max_per_day"`
	MaxRetries      int `yaml:"max_retries"`

	Subject  string `yaml:"subject"`
	BodyFile string `yaml:"body_file"`

	GenreKeywords []string `yaml:"genre_keywords"`
	ExcludeGenres []string `yaml:"exclude_genres"`
}

// FollowConfig contains the follow campaign settings.
type FollowConfig struct {
	MinDelaySeconds int `yaml:"min_delay_seconds"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
	MaxPerHour      int `yaml:"max_per_hour"`
	MaxPerDay       int `yaml:"max_per_day"`
	MaxRetries      int `yaml:"max_retries"`

	APIURL string `yaml:"api_url"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	GenreKeywords []string `yaml:"genre_keywords"`
	ExcludeGenres []string `yaml:"exclude_genres"`
}

// SMTPConfig contains the mail submission settings. The password comes
// from the environment, never from the config file.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	From        string `yaml:"from"`
	CC          string `yaml:"cc"`
}

// FilesConfig contains data file locations.
type FilesConfig struct {
	Contacts       string `yaml:"contacts"`
	EmailProgress  string `yaml:"email_progress"`
	FollowProgress string `yaml:"follow_progress"`
	EmailLog       string `yaml:"email_log"`
	FollowLog      string `yaml:"follow_log"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: :9090
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default creates a configuration with all defaults applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	// Conservative throttle defaults to stay under provider spam limits.
	if c.Email.MinDelaySeconds == 0 {
		c.Email.MinDelaySeconds = 30
	}
	if c.Email.MaxDelaySeconds == 0 {
		c.Email.MaxDelaySeconds = 90
	}
	if c.Email.MaxPerHour == 0 {
		c.Email.MaxPerHour = 50
	}
	if c.Email.MaxPerDay == 0 {
		c.Email.MaxPerDay = 200
	}
	if c.Email.MaxRetries == 0 {
		c.Email.MaxRetries = 3
	}
	if c.Email.Subject == "" {
		c.Email.Subject = "Playlist submission"
	}

	if c.Follow.MinDelaySeconds == 0 {
		c.Follow.MinDelaySeconds = 60
	}
	if c.Follow.MaxDelaySeconds == 0 {
		c.Follow.MaxDelaySeconds = 180
	}
	if c.Follow.MaxPerHour == 0 {
		c.Follow.MaxPerHour = 20
	}
	if c.Follow.MaxPerDay == 0 {
		c.Follow.MaxPerDay = 100
	}
	if c.Follow.MaxRetries == 0 {
		c.Follow.MaxRetries = 3
	}
	if c.Follow.TokenEnv == "" {
		c.Follow.TokenEnv = "FOLLOW_API_TOKEN"
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.PasswordEnv == "" {
		c.SMTP.PasswordEnv = "SMTP_PASSWORD"
	}

	if c.Files.Contacts == "" {
		c.Files.Contacts = "contacts.csv"
	}
	if c.Files.EmailProgress == "" {
		c.Files.EmailProgress = "campaign_progress.db"
	}
	if c.Files.FollowProgress == "" {
		c.Files.FollowProgress = "follow_progress.db"
	}
	if c.Files.EmailLog == "" {
		c.Files.EmailLog = "campaign.log"
	}
	if c.Files.FollowLog == "" {
		c.Files.FollowLog = "follow.log"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if err := validateThrottle("email", c.Email.MinDelaySeconds, c.Email.MaxDelaySeconds, c.Email.MaxPerHour, c.Email.MaxPerDay); err != nil {
		return err
	}
	if err := validateThrottle("follow", c.Follow.MinDelaySeconds, c.Follow.MaxDelaySeconds, c.Follow.MaxPerHour, c.Follow.MaxPerDay); err != nil {
		return err
	}
	return nil
}

func validateThrottle(section string, minDelay, maxDelay, perHour, perDay int) error {
	if minDelay < 0 || maxDelay < 0 {
		return fmt.Errorf("%s: delay seconds must not be negative", section)
	}
	if maxDelay < minDelay {
		return fmt.Errorf("%s: max_delay_seconds must be >= min_delay_seconds", section)
	}
	if perHour < 0 || perDay < 0 {
		return fmt.Errorf("%s: rate limits must not be negative", section)
	}
	if perHour > 0 && perDay > 0 && perHour > perDay {
		return fmt.Errorf("%s: max_per_hour must not exceed max_per_day", section)
	}
	return nil
}
