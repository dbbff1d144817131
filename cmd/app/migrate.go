// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/database"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage database migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withDB(func(_ context.Context, cmd *cli.Command, db *sqlx.DB) error {
					// Open already migrated to the latest version
					return printVersion(cmd, db)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the latest migration",
				Action: withDB(func(_ context.Context, cmd *cli.Command, db *sqlx.DB) error {
					if err := database.MigrateDown(db.DB); err != nil {
						return err
					}
					return printVersion(cmd, db)
				}),
			},
			{
				Name:  "reset",
				Usage: "Roll back all migrations",
				Action: withDB(func(_ context.Context, cmd *cli.Command, db *sqlx.DB) error {
					if err := database.MigrateReset(db.DB); err != nil {
						return err
					}
					return printVersion(cmd, db)
				}),
			},
			{
				Name:  "status",
				Usage: "Print the current schema version",
				Action: withDB(func(_ context.Context, cmd *cli.Command, db *sqlx.DB) error {
					return printVersion(cmd, db)
				}),
			},
		},
	}
}

// withDB opens the configured database for fn and closes it afterwards.
func withDB(fn func(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)
		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		return fn(ctx, cmd, db)
	}
}

func printVersion(cmd *cli.Command, db *sqlx.DB) error {
	version, err := database.MigrationVersion(db.DB)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "schema version: %d\n", version)
	return err
}
