package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/invoicepro/api"
	"github.com/warp/invoicepro/logging"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the recurring generation schedule",
	Long: `Starts the HTTP API and schedules recurring invoice generation
(default daily at 02:00 in scheduler.timezone).

On SIGINT/SIGTERM the server stops accepting requests, waits for active
requests and any in-flight generation run, then closes the database.`,
	Example: `  invoicepro serve
  invoicepro serve --port 3000 --db ":memory:"`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.WithComponent("serve")

	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	store, err := openStore(log)
	if err != nil {
		return err
	}
	defer store.Close()

	scheduler, err := newScheduler(store, log)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	handler := api.NewHandler(store, scheduler, log)
	router := api.NewRouter(handler, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Scheduler.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}
	if err := scheduler.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("scheduler stop incomplete")
	}

	log.Info().Msg("server stopped")
	return runErr
}
