package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"hotfeed/cache"
	"hotfeed/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing posts that are old.

		Remove posts, and their comments, that are older than --days days from
		the database. This is to keep the database size down. Old posts rank
		near zero and only show up on the last feed pages anyway.`,
		Flags: append(storeFlags(),
			&cli.IntFlag{
				Name:    "days",
				Value:   90,
				Usage:   "Remove posts created more than this many days ago",
				EnvVars: []string{"HOTFEED_TIDY_DAYS"},
			},
			&cli.StringFlag{
				Name:    "redis",
				Usage:   "Redis address of the post cache to purge",
				EnvVars: []string{"HOTFEED_REDIS"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			days := ctx.Int("days")
			if days < 1 {
				return fmt.Errorf("days must be at least 1, got %d", days)
			}

			stores, err := db.Open(ctx.Context, cfg.Store)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			before := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			removed, err := stores.Tidy.Tidy(ctx.Context, before)
			if err != nil {
				return err
			}

			fmt.Printf("Removed %d posts created before %s\n", removed, before.Format(time.RFC3339))

			// removed posts must not keep answering from the cache
			if cfg.Cache.RedisAddr == "" || removed == 0 {
				return nil
			}
			client, err := cache.NewClient(ctx.Context, cfg.Cache.RedisAddr)
			if err != nil {
				return fmt.Errorf("purge post cache: %w", err)
			}
			defer client.Close()
			if _, err := cache.Purge(ctx.Context, client); err != nil {
				return fmt.Errorf("purge post cache: %w", err)
			}
			return nil
		},
	}
}
