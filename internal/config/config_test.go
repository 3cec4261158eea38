package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, int64(50), cfg.Mailbox.MaxResults)
	assert.Equal(t, "in:inbox", cfg.Mailbox.Query)
	assert.Equal(t, 10, cfg.Bulk.MaxInFlight)
	assert.Equal(t, "./data/mailbulk-token.json", cfg.OAuth.TokenFile)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, bulk.AllOrNothing, p)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, "mailbulk.yaml", `
oauth:
  client_id: file-id
  client_secret: file-secret
mailbox:
  max_results: 200
  query: "in:inbox older_than:1y"
bulk:
  max_in_flight: 4
  rate_per_sec: 12.5
  burst: 3
  policy: per_item
`)
	t.Setenv("MAILBULK_BULK_MAX_IN_FLIGHT", "2")
	t.Setenv("MAILBULK_OAUTH_CLIENT_ID", "env-id")

	cfg, err := config.Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.OAuth.ClientID)
	assert.Equal(t, "file-secret", cfg.OAuth.ClientSecret)
	assert.Equal(t, int64(200), cfg.Mailbox.MaxResults)
	assert.Equal(t, "in:inbox older_than:1y", cfg.Mailbox.Query)
	assert.Equal(t, 2, cfg.Bulk.MaxInFlight)
	assert.InDelta(t, 12.5, cfg.Bulk.RatePerSec, 1e-9)
	assert.Equal(t, 3, cfg.Bulk.Burst)

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, bulk.PerItem, p)
	assert.NoError(t, cfg.RequireOAuth())
}

func TestLoadLegacyOAuthEnv(t *testing.T) {
	t.Setenv("OAUTH_GOOGLE_CLIENT_ID", "legacy-id")
	// registers restore, then leaves the variable to the env file
	t.Setenv("OAUTH_GOOGLE_CLIENT_SECRET", "")
	require.NoError(t, os.Unsetenv("OAUTH_GOOGLE_CLIENT_SECRET"))

	envFile := writeFile(t, ".env", "OAUTH_GOOGLE_CLIENT_SECRET=from-dotenv\nOAUTH_GOOGLE_CLIENT_ID=ignored\n")

	cfg, err := config.Load("", envFile)
	require.NoError(t, err)

	// godotenv does not override variables that are already set
	assert.Equal(t, "legacy-id", cfg.OAuth.ClientID)
	assert.Equal(t, "from-dotenv", cfg.OAuth.ClientSecret)
	assert.NoError(t, cfg.RequireOAuth())
}

func TestRequireOAuth(t *testing.T) {
	assert.Error(t, config.Config{}.RequireOAuth())
	assert.NoError(t, config.Config{OAuth: config.OAuthConfig{ClientID: "a", ClientSecret: "b"}}.RequireOAuth())
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(writeFile(t, "bad.yaml", "bulk:\n  policy: best_effort\n"), "")
	assert.ErrorContains(t, err, "unknown reconciliation policy")

	_, err = config.Load(writeFile(t, "broken.yaml", "bulk: [\n"), "")
	assert.ErrorContains(t, err, "reading config")

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.ErrorContains(t, err, "reading config")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = config.Load("", filepath.Join(t.TempDir(), "nope.env"))
	assert.ErrorContains(t, err, "godotenv.Load failed")
}
