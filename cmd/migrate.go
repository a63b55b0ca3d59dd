package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"hotfeed/db"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured SQLite or PostgreSQL database. Will create the SQLite database if it does not exist.`,
		Flags:       storeFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database configured: %s %s\n", cfg.Store.Driver, cfg.Store.DSN)
			return db.Migrate(cfg.Store.Driver, cfg.Store.DSN)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags:       storeFlags(),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database configured: %s %s\n", cfg.Store.Driver, cfg.Store.DSN)
			return db.Rollback(cfg.Store.Driver, cfg.Store.DSN)
		},
	}
}
