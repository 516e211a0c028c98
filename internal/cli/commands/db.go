package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/orm/query"
)

// NewDBCommand creates the db command
func NewDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database connectivity commands",
	}
	cmd.AddCommand(newDBPingCommand())
	return cmd
}

func newDBPingCommand() *cobra.Command {
	var (
		driver  string
		dsn     string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Open a connection and ping the database",
		Example: `  ormctl db ping --driver pgx --dsn postgres://app@localhost/app
  ormctl db ping --driver sqlite3 --dsn ./app.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn is required")
			}

			logger := zap.NewNop()
			if verbose {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return fmt.Errorf("failed to create logger: %w", err)
				}
				defer logger.Sync()
			}

			conn, err := query.Open(driver, dsn, query.WithLogger(logger))
			if err != nil {
				ui.Failure(cmd.ErrOrStderr(), noColor(cmd), "%v", err)
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := conn.DB().PingContext(ctx); err != nil {
				ui.Failure(cmd.ErrOrStderr(), noColor(cmd), "ping failed: %v", err)
				return fmt.Errorf("failed to ping database: %w", err)
			}
			ui.Success(cmd.OutOrStdout(), noColor(cmd), "%s database reachable in %s",
				conn.Dialect(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "pgx", "Driver name: postgres, pgx or sqlite3")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Data source name")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Ping timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log connection activity")
	return cmd
}
