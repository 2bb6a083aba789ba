// flowd is the workflow automation service: it serves the admin API and
// webhook ingress, consumes change-capture events and runs workflows.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"flowhook/backend/internal/config"
	"flowhook/backend/internal/logging"
	"flowhook/backend/internal/repository"
)

var version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:     "flowd",
		Short:   "Database- and event-triggered workflow automation service",
		Version: version,
	}
	root.AddCommand(serveCmd(), seedCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			pool, err := initDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Schema migration complete")
			return nil
		},
	}
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return nil, nil, err
	}
	logger := logging.NewLoggerWithLevel(cfg.LogLevel)
	return cfg, logger, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
