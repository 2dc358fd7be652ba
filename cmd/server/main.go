/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the leave engine server.

COMMANDS:
  serve           Start the HTTP API
  hash-password   Print a bcrypt hash for HR_PASSWORD

CONFIGURATION:
  Environment variables, optionally from ./.env (see config/config.go):
    APP_ENV, LOG_LEVEL, HTTP_PORT, CORS_ORIGINS,
    DB_DRIVER, DB_PATH, DATABASE_URL,
    SECRET_KEY, HR_USERNAME, HR_PASSWORD, TOKEN_TTL_MINUTES
  Flags on serve win over the environment.

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/leave.db

  # Run with in-memory database
  ./server serve --db=":memory:"

  # Run against Postgres
  DATABASE_URL=postgres://... ./server serve --driver=postgres

  # Hash the HR password
  ./server hash-password 's3cret'

SEE ALSO:
  - serve.go: Server startup and graceful shutdown
  - api/server.go: Router configuration
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Leave ledger API server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newHashPasswordCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
