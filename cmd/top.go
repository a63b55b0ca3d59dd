package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"hotfeed/db"
	"hotfeed/feeds"
	"hotfeed/models"
)

func topCmd() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "Print a page of the ranked feed to the command line",
		Description: `Ranks the feed at the current time and prints one page.

Returns each post as a JSON object on a single line, in rank order. Use a tool
like jq to process the output.

Prints all other log messages to stderr.`,
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:  "page",
				Usage: "Page number, starting at 1",
			},
			&cli.StringFlag{
				Name:  "limit",
				Usage: "Posts per page",
			},
		),
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			stores, err := db.Open(ctx.Context, cfg.Store)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			planner := feeds.NewPlanner(stores.Posts, stores.Users, feeds.PlannerConfig{
				DefaultLimit: cfg.Feed.DefaultLimit,
				MaxLimit:     cfg.Feed.MaxLimit,
			})
			resp, err := planner.FeedNow(ctx.Context, ctx.String("page"), ctx.String("limit"))
			if err != nil {
				return err
			}

			for i := range resp.Posts {
				printStdout(&resp.Posts[i])
			}
			log.WithFields(log.Fields{
				"posts":      len(resp.Posts),
				"totalPages": resp.TotalPages,
			}).Info("Printed feed page")
			return nil
		},
	}
}

func printStdout(post *models.RankedPost) {
	// Print as single JSON string on a single line
	postJson, err := json.Marshal(post)
	if err == nil {
		fmt.Println(string(postJson))
	}
}
