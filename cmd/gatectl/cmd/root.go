// Package cmd implements gatectl, the admin CLI for the identity store, the audit
// table and local token issuance.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/report-gate/config"
	"github.com/upb/report-gate/repositories"
	"github.com/upb/report-gate/repositories/sqlstore"
)

// Execute runs the CLI and returns the process exit code
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	driver     string
	sqlitePath string
	dsn        string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "gatectl",
		Short: "report-gate admin CLI",
		Long: `gatectl manages the report-gate identity store (users and role grants),
reads the audit trail and issues HS256 tokens for local development.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadDotEnv()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.driver, "db-driver", "", "Database driver: postgres or sqlite (default from DB_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite file (default from SQLITE_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "database-url", "", "Postgres connection string (default from DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log database activity")

	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newUsersCmd(opts))
	rootCmd.AddCommand(newRolesCmd(opts))
	rootCmd.AddCommand(newAuditCmd(opts))

	return rootCmd
}

// store is an open connection plus its repositories
type store struct {
	factory *sqlstore.RepositoryFactory
	repos   *repositories.Repositories
}

func (s *store) Close() error {
	return s.factory.Close()
}

// openStore connects to the configured database, applying flag overrides
func openStore(ctx context.Context, opts *globalOptions) (*store, error) {
	dbCfg := config.LoadDatabase()
	if opts.driver != "" {
		dbCfg.Driver = opts.driver
	}
	if opts.sqlitePath != "" {
		dbCfg.SQLitePath = opts.sqlitePath
	}
	if opts.dsn != "" {
		dbCfg.ConnectionString = opts.dsn
	}
	if err := dbCfg.Validate(); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = dev
	}

	factory, err := sqlstore.NewRepositoryFactory(ctx, dbCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &store{factory: factory, repos: factory.NewRepositories()}, nil
}
