package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"hotfeed/cache"
	"hotfeed/db"
	"hotfeed/feeds"
	"hotfeed/posts"
	"hotfeed/query"
	"hotfeed/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the post feed",
		Description: `Starts the hotfeed HTTP server.

Opens the configured store, running migrations first when auto_migrate is
set, and serves the ranked feed and the post endpoints. When a Redis address
is configured single post lookups are cached there.`,
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"HOTFEED_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				EnvVars: []string{"HOTFEED_PORT"},
			},
			&cli.StringFlag{
				Name:    "redis",
				Usage:   "Redis address for the post cache",
				EnvVars: []string{"HOTFEED_REDIS"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			log.Info("Starting hotfeed...")

			stores, err := db.Open(ctx.Context, cfg.Store)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			var postStore query.PostStore = stores.Posts
			if cfg.Cache.RedisAddr != "" {
				client, err := cache.NewClient(ctx.Context, cfg.Cache.RedisAddr)
				if err != nil {
					return err
				}
				defer client.Close()
				postStore = cache.NewPosts(client, stores.Posts, cfg.Cache.TTL.Duration)
				log.WithFields(log.Fields{
					"addr": cfg.Cache.RedisAddr,
					"ttl":  cfg.Cache.TTL.Duration,
				}).Info("Caching posts in Redis")
			}

			app := server.Server(&server.ServerConfig{
				Hostname:     cfg.Server.Hostname,
				UserHeader:   cfg.Server.UserHeader,
				AllowOrigins: cfg.Server.AllowOrigins,
				Planner: feeds.NewPlanner(postStore, stores.Users, feeds.PlannerConfig{
					DefaultLimit: cfg.Feed.DefaultLimit,
					MaxLimit:     cfg.Feed.MaxLimit,
				}),
				Posts: posts.NewService(postStore, stores.Users, stores.Blobs),
			})

			// Graceful shutdown
			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-sigCtx.Done()
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithFields(log.Fields{"error": err}).Error("Error shutting down server")
				}
			}()

			log.WithFields(log.Fields{
				"addr":   cfg.Server.Addr(),
				"driver": cfg.Store.Driver,
			}).Info("Starting server...")
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
