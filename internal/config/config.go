// Package config loads runtime settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hal9000y/mailbulk/internal/bulk"
)

// EnvPrefix prefixes environment overrides, e.g. MAILBULK_BULK_MAX_IN_FLIGHT.
const EnvPrefix = "MAILBULK"

// OAuthConfig holds the Google client credentials.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	// RedirectURL overrides the URL derived from the listen address.
	RedirectURL string `mapstructure:"redirect_url" yaml:"redirect_url"`
	TokenFile   string `mapstructure:"token_file" yaml:"token_file"`
}

// MailboxConfig controls what list_emails loads.
type MailboxConfig struct {
	MaxResults       int64  `mapstructure:"max_results" yaml:"max_results"`
	Query            string `mapstructure:"query" yaml:"query"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// BulkConfig tunes bulk dispatch and reconciliation.
type BulkConfig struct {
	MaxInFlight int     `mapstructure:"max_in_flight" yaml:"max_in_flight"`
	RatePerSec  float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
	Burst       int     `mapstructure:"burst" yaml:"burst"`
	Policy      string  `mapstructure:"policy" yaml:"policy"`
}

// Config is the top-level configuration.
type Config struct {
	OAuth   OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Bulk    BulkConfig    `mapstructure:"bulk" yaml:"bulk"`
}

// Policy parses the configured reconciliation policy.
func (c Config) Policy() (bulk.Policy, error) {
	return bulk.ParsePolicy(c.Bulk.Policy)
}

// Load reads path, when set, then applies MAILBULK_* environment overrides.
// An explicit path that cannot be read is an error.
// envFile, when set, is loaded into the process environment first. The
// OAUTH_GOOGLE_CLIENT_ID and OAUTH_GOOGLE_CLIENT_SECRET variables are honoured
// as fallbacks for the client credentials.
func Load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.redirect_url", "")
	v.SetDefault("oauth.token_file", "./data/mailbulk-token.json")
	v.SetDefault("mailbox.max_results", 50)
	v.SetDefault("mailbox.query", "in:inbox")
	v.SetDefault("mailbox.fetch_concurrency", 10)
	v.SetDefault("bulk.max_in_flight", 10)
	v.SetDefault("bulk.rate_per_sec", 0)
	v.SetDefault("bulk.burst", 1)
	v.SetDefault("bulk.policy", string(bulk.AllOrNothing))

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.OAuth.ClientID == "" {
		cfg.OAuth.ClientID = os.Getenv("OAUTH_GOOGLE_CLIENT_ID")
	}
	if cfg.OAuth.ClientSecret == "" {
		cfg.OAuth.ClientSecret = os.Getenv("OAUTH_GOOGLE_CLIENT_SECRET")
	}

	if _, err := cfg.Policy(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RequireOAuth reports missing client credentials.
func (c Config) RequireOAuth() error {
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return errors.New("OAuth client id and secret must be set (MAILBULK_OAUTH_CLIENT_ID or OAUTH_GOOGLE_CLIENT_ID)")
	}
	return nil
}
