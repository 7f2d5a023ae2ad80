package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0 2 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, "fixed_days", cfg.Recurrence.StepMode)
	assert.Equal(t, "created_at", cfg.Recurrence.Baseline)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A YAML file and an environment override
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "invoicepro.yaml")
	yaml := `
server:
  port: 9090
  cors_origins:
    - https://app.example
database:
  path: /tmp/from-file.db
scheduler:
  cron: "30 1 * * *"
  timezone: UTC
  run_timeout: 2m
recurrence:
  step_mode: calendar
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("INVOICEPRO_DATABASE__PATH", "/tmp/from-env.db")

	// WHEN: Loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: Env wins over file, file wins over defaults
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	assert.Equal(t, "30 1 * * *", cfg.Scheduler.Cron)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.RunTimeout)
	assert.Equal(t, "calendar", cfg.Recurrence.StepMode)
	assert.Equal(t, "created_at", cfg.Recurrence.Baseline, "untouched keys keep defaults")
	assert.True(t, cfg.Scheduler.Enabled)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_EnvList(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("INVOICEPRO_SERVER__CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("INVOICEPRO_SCHEDULER__ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"INVOICEPRO_SCHEDULER__CRON":       "every day",
		"INVOICEPRO_SCHEDULER__TIMEZONE":   "Mars/Olympus",
		"INVOICEPRO_RECURRENCE__BASELINE":  "updated_at",
		"INVOICEPRO_RECURRENCE__STEP_MODE": "lunar",
		"INVOICEPRO_SERVER__PORT":          "70000",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(key, value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "scheduler.run_timeout", envTransform("INVOICEPRO_SCHEDULER__RUN_TIMEOUT"))
	assert.Equal(t, "log.level", envTransform("INVOICEPRO_LOG__LEVEL"))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
