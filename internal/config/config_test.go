package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.False(t, cfg.Claims.DirectClaimCascade)
	assert.Equal(t, 5*time.Minute, cfg.Claims.ReconcileInterval)
	assert.Equal(t, 3, cfg.Claims.CascadeRetries)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "treasure.yaml", `
server:
  addr: ":8080"
  base_url: "https://treasure.example.com"
database:
  path: /var/lib/treasure/db.sqlite
claims:
  direct_claim_cascade: true
  reconcile_interval: 1m
auth:
  require_verification: true
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://treasure.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "/var/lib/treasure/db.sqlite", cfg.Database.Path)
	assert.True(t, cfg.Claims.DirectClaimCascade)
	assert.Equal(t, time.Minute, cfg.Claims.ReconcileInterval)
	assert.True(t, cfg.Auth.RequireVerification)
	assert.Equal(t, 3, cfg.Claims.CascadeRetries, "unset keys keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "treasure.yaml", "server:\n  addr: \":8080\"\n")
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TREASURE_DIRECT_CLAIM_CASCADE", "true")
	t.Setenv("TREASURE_CASCADE_RETRIES", "5")
	t.Setenv("TREASURE_RECONCILE_INTERVAL", "0s")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Claims.DirectClaimCascade)
	assert.Equal(t, 5, cfg.Claims.CascadeRetries)
	assert.Zero(t, cfg.Claims.ReconcileInterval)
}

func TestEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "TREASURE_MEDIA_DIR=/srv/media\nTREASURE_DB=env.db\n")
	t.Setenv("TREASURE_DB", "process.db")
	t.Cleanup(func() { os.Unsetenv("TREASURE_MEDIA_DIR") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "/srv/media", cfg.Media.Dir)
	assert.Equal(t, "process.db", cfg.Database.Path, "process environment wins over .env")
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestMalformedEnv(t *testing.T) {
	t.Setenv("TREASURE_CASCADE_RETRIES", "many")
	t.Setenv("TREASURE_TOKEN_TTL", "forever")

	_, err := Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TREASURE_CASCADE_RETRIES")
	assert.Contains(t, err.Error(), "TREASURE_TOKEN_TTL")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Claims.CascadeRetries = 0
	cfg.Media.MaxFiles = 9
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cascade_retries")
	assert.Contains(t, err.Error(), "max_files")
	assert.Contains(t, err.Error(), "log.format")
}

func TestLogEnv(t *testing.T) {
	t.Setenv("TREASURE_LOG_FORMAT", "json")
	t.Setenv("TREASURE_LOG_LEVEL", "DEBUG")
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}
