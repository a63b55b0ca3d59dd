package cmd

import (
	"github.com/urfave/cli/v2"

	"hotfeed/config"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "hotfeed",
		Usage: "A content feed ranked by time-decayed popularity",
		Description: `Serves posts ranked by a hot score that combines the number of
		votes with the age of the post, paginated by page number.

		Posts, comments and users are kept in SQLite, PostgreSQL, MongoDB or
		in memory. Single post lookups can be cached in Redis.

		Flags can generally be set via environment variables, e.g.:

		--config => HOTFEED_CONFIG=hotfeed.toml
		--port => HOTFEED_PORT=8080
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			useraddCmd(),
			topCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// storeFlags select the configuration file and override its store section
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to TOML configuration file",
			EnvVars: []string{"HOTFEED_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "driver",
			Usage:   "Store driver: memory, sqlite, postgres or mongo",
			EnvVars: []string{"HOTFEED_DRIVER"},
		},
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "Store connection string or SQLite file path",
			EnvVars: []string{"HOTFEED_DSN"},
		},
		&cli.StringFlag{
			Name:    "database",
			Usage:   "MongoDB database name",
			EnvVars: []string{"HOTFEED_DATABASE"},
		},
	}
}

// loadConfig reads the configuration file and applies flags that were set
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("driver") {
		cfg.Store.Driver = ctx.String("driver")
	}
	if ctx.IsSet("dsn") {
		cfg.Store.DSN = ctx.String("dsn")
	}
	if ctx.IsSet("database") {
		cfg.Store.Database = ctx.String("database")
	}
	if ctx.IsSet("port") {
		cfg.Server.Port = ctx.Int("port")
	}
	if ctx.IsSet("hostname") {
		cfg.Server.Hostname = ctx.String("hostname")
	}
	if ctx.IsSet("redis") {
		cfg.Cache.RedisAddr = ctx.String("redis")
	}

	return cfg, cfg.Validate()
}
