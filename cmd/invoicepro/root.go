package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/invoicepro/config"
	"github.com/warp/invoicepro/logging"
	"github.com/warp/invoicepro/recurrence"
	"github.com/warp/invoicepro/store/sqlite"
)

var version = "0.1.0"

var (
	configPath string
	dbPath     string

	// cfg is loaded by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "invoicepro",
	Short: "InvoicePro - invoicing with recurring invoice generation",
	Long: `InvoicePro stores invoices and clients and generates the next occurrence
of every recurring invoice template once it becomes due.

Run "invoicepro serve" for the API with the daily schedule, or
"invoicepro generate" for a single generation run.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Database.Path = dbPath
		}
		if _, err := logging.Setup(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logging.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
}

// openStore opens the configured record store. Failure is fatal in both modes.
func openStore(log zerolog.Logger) (*sqlite.Store, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.Database.Path).Msg("record store opened")
	return store, nil
}

// newScheduler wires the recurrence engine from configuration.
func newScheduler(store *sqlite.Store, log zerolog.Logger) (*recurrence.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	driver := recurrence.NewDriver(store, log)
	driver.Calculator = recurrence.Calculator{Mode: recurrence.StepMode(cfg.Recurrence.StepMode)}
	driver.Baseline = recurrence.Baseline(cfg.Recurrence.Baseline)

	scheduler := recurrence.NewScheduler(driver, store, log)
	scheduler.Spec = cfg.Scheduler.Cron
	scheduler.Location = loc
	scheduler.RunTimeout = cfg.Scheduler.RunTimeout
	scheduler.Enabled = cfg.Scheduler.Enabled
	return scheduler, nil
}
