// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/server"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "accounts",
		Usage:  "Email and password account service",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: server.Run,
			},
			migrateCommand(),
			createStaffCommand(),
		},
	}
}
