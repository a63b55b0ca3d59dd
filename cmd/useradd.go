package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"hotfeed/db"
	"hotfeed/models"
)

func useraddCmd() *cli.Command {
	return &cli.Command{
		Name:  "useradd",
		Usage: "Create a user",
		Description: `Creates a user that can author posts and comments.

Asks for the user name when --name is not given. Prints the new user id,
which clients send in the user id header.`,
		Flags: append(storeFlags(),
			&cli.StringFlag{
				Name:  "name",
				Usage: "User name",
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "Email address",
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == db.DriverMemory {
				return errors.New("users created in the memory store are lost on exit")
			}

			name := ctx.String("name")
			if name == "" {
				name, err = prompt.New().Ask("User name:").Input("")
				if err != nil {
					return err
				}
			}
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("please specify a user name")
			}

			stores, err := db.Open(ctx.Context, cfg.Store)
			if err != nil {
				return err
			}
			defer stores.Close(context.Background())

			user := &models.User{UserName: name, Email: ctx.String("email")}
			if err := stores.Users.CreateUser(ctx.Context, user); err != nil {
				return fmt.Errorf("could not create user: %w", err)
			}

			fmt.Println(user.Id)
			return nil
		},
	}
}
