/*
main.go - Application entry point

PURPOSE:
  InvoicePro server and recurring invoice generator.

COMMANDS:
  serve     Run the HTTP API and the daily generation schedule (continuous mode)
  generate  Run recurring generation once and exit (one-shot mode)

CONFIGURATION:
  Defaults, then invoicepro.yaml (or --config / $INVOICEPRO_CONFIG), then
  INVOICEPRO_* environment variables. A .env file is loaded first.
  See config/config.go.

EXAMPLES:
  # Continuous mode with a file database
  invoicepro serve --db ./data/invoicepro.db

  # One-shot run, e.g. from an external cron
  invoicepro generate

SEE ALSO:
  - cmd/invoicepro/serve.go: startup and graceful shutdown
  - cmd/invoicepro/generate.go: one-shot mode
*/
package main

func main() {
	Execute()
}
