package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_url: redis://localhost:6379/0
relays:
  - wss://relay.example.com
server_secret: nsec1examplesecret
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "app:", cfg.Namespace)
	assert.Equal(t, "v2", cfg.EncryptionPref)
	assert.Equal(t, 50, cfg.Limits.MPS)
	assert.Equal(t, 1<<20, cfg.Limits.BPS)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveToFileThenLoadRoundTrip(t *testing.T) {
	cfg := &Config{
		BackendURL:   "redis://localhost:6379/0",
		Namespace:    "appA:",
		Relays:       []string{"wss://relay.example.com"},
		ServerSecret: "nsec1examplesecret",
	}
	setDefaults(cfg)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.BackendURL, loaded.BackendURL)
	assert.Equal(t, cfg.Namespace, loaded.Namespace)
	assert.Equal(t, cfg.Relays, loaded.Relays)
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	problems := Validate(&Config{})
	assert.Contains(t, problems, "backend_url is required")
	assert.Contains(t, problems, "relays must list at least one relay URL")
	assert.Contains(t, problems, "server_secret is required")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := &Config{
		BackendURL:   "redis://localhost:6379/0",
		Relays:       []string{"wss://relay.example.com"},
		ServerSecret: "nsec1examplesecret",
	}
	setDefaults(cfg)
	assert.Empty(t, Validate(cfg))
}

func TestValidateRejectsUnknownEncryptionPref(t *testing.T) {
	cfg := &Config{
		BackendURL:     "redis://localhost:6379/0",
		Relays:         []string{"wss://relay.example.com"},
		ServerSecret:   "nsec1examplesecret",
		EncryptionPref: "v3",
	}
	setDefaults(cfg)
	assert.Contains(t, Validate(cfg), "encryption_pref must be v2 or v1")
}
