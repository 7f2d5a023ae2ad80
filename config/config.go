/*
Package config loads InvoicePro configuration.

SOURCES (later wins):
  1. Defaults (Default())
  2. YAML file: $INVOICEPRO_CONFIG, else ./invoicepro.yaml when present
  3. Environment: INVOICEPRO_<SECTION>__<KEY>, e.g.
     INVOICEPRO_DATABASE__PATH=/var/lib/invoicepro.db
     INVOICEPRO_SCHEDULER__RUN_TIMEOUT=2m

  A .env file in the working directory is loaded into the environment first.

EXAMPLE invoicepro.yaml:
  server:
    port: 8080
  database:
    path: invoicepro.db
  scheduler:
    enabled: true
    cron: "0 2 * * *"
    timezone: Europe/Berlin
    run_timeout: 5m
  recurrence:
    step_mode: fixed_days
    baseline: created_at
  log:
    level: info
    format: console
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/warp/invoicepro/logging"
	"github.com/warp/invoicepro/recurrence"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "INVOICEPRO_"

	// ConfigPathEnvVar points at a YAML config file.
	ConfigPathEnvVar = "INVOICEPRO_CONFIG"

	// DefaultConfigPath is read when present and ConfigPathEnvVar is unset.
	DefaultConfigPath = "invoicepro.yaml"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Recurrence RecurrenceConfig `koanf:"recurrence"`
	Log        logging.Config   `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	// Path is the store connection target, read once at startup.
	Path string `koanf:"path"`
}

type SchedulerConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Cron       string        `koanf:"cron"`
	Timezone   string        `koanf:"timezone"` // empty = server local time
	RunTimeout time.Duration `koanf:"run_timeout"`
}

type RecurrenceConfig struct {
	StepMode string `koanf:"step_mode"`
	Baseline string `koanf:"baseline"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "invoicepro.db"},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			Cron:       recurrence.DefaultSpec,
			RunTimeout: 5 * time.Minute,
		},
		Recurrence: RecurrenceConfig{
			StepMode: string(recurrence.StepFixedDays),
			Baseline: string(recurrence.BaselineCreatedAt),
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads .env, the optional YAML file and the environment on top of the
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values arrive as a single string.
	if origins, ok := k.Get("server.cors_origins").(string); ok {
		if err := k.Set("server.cors_origins", splitList(origins)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps INVOICEPRO_SCHEDULER__RUN_TIMEOUT to scheduler.run_timeout.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigPath); err == nil {
		return DefaultConfigPath
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("scheduler.cron %q: %w", c.Scheduler.Cron, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Scheduler.RunTimeout < 0 {
		return errors.New("scheduler.run_timeout must not be negative")
	}
	if !recurrence.StepMode(c.Recurrence.StepMode).Valid() {
		return fmt.Errorf("recurrence.step_mode must be %q or %q, got %q",
			recurrence.StepFixedDays, recurrence.StepCalendar, c.Recurrence.StepMode)
	}
	if !recurrence.Baseline(c.Recurrence.Baseline).Valid() {
		return fmt.Errorf("recurrence.baseline must be %q or %q, got %q",
			recurrence.BaselineCreatedAt, recurrence.BaselineOccurrenceDate, c.Recurrence.Baseline)
	}
	return nil
}

// Location resolves scheduler.timezone; empty means server local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}
