package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lockup-ledger/internal/storage/migrations"
	pgstore "lockup-ledger/internal/storage/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var skipPostgres, skipClickhouse bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL and ClickHouse migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()

			if !skipPostgres {
				if cfg.Storage.PostgresDSN == "" {
					return errors.New("storage.postgres_dsn is required")
				}
				pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
				if err != nil {
					return fmt.Errorf("connect to postgres: %w", err)
				}
				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				pool.Close()
				if err != nil {
					return err
				}
				logger.Info("postgres migrated", zap.Strings("applied", applied))
			}

			if !skipClickhouse {
				if cfg.Storage.ClickhouseDSN == "" {
					return errors.New("storage.clickhouse_dsn is required")
				}
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
				if err != nil {
					return err
				}
				conn.Close()
				logger.Info("clickhouse migrated")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPostgres, "skip-postgres", false, "do not migrate PostgreSQL")
	cmd.Flags().BoolVar(&skipClickhouse, "skip-clickhouse", false, "do not migrate ClickHouse")
	return cmd
}
