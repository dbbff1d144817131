// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/email"
	"codeberg.org/oliverandrich/go-accounts/internal/services/token"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
	"golang.org/x/term"
)

// readPassword reads without echo; replaced in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

func createStaffCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-staff",
		Usage: "Create an active staff account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Email address of the account", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display name of the account", Required: true},
		},
		Action: withDB(createStaff),
	}
}

func createStaff(ctx context.Context, cmd *cli.Command, db *sqlx.DB) error {
	cfg := config.NewFromCLI(cmd)
	w := cmd.Root().Writer

	password, err := promptPassword(w)
	if err != nil {
		return err
	}

	svc := account.New(
		repository.New(db),
		token.NewService(token.WithTTL(cfg.Challenge.TTL)),
		email.NewLogNotifier(slog.Default(), cfg.Server.BaseURL),
		nil,
		account.WithHasher(auth.NewHasher(cfg.Password.BcryptCost)),
	)

	acct, err := svc.CreateStaff(ctx, cmd.String("name"), cmd.String("email"), password)
	if ve, ok := account.IsValidation(err); ok {
		for _, msg := range ve.Messages {
			fmt.Fprintln(w, msg)
		}
		return errors.New("account not created")
	}
	if errors.Is(err, account.ErrAlreadyActive) {
		return fmt.Errorf("an account with email %s already exists", cmd.String("email"))
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "created staff account %d <%s>\n", acct.ID, acct.Email)
	return err
}

// promptPassword asks twice and fails when the entries differ.
func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(w, "Repeat password: ")
	second, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if !bytes.Equal(first, second) {
		return "", errors.New("the passwords do not match")
	}
	return string(first), nil
}
