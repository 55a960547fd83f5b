package main

import (
	"github.com/geochat/tokenauth/userdir"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if settings.UserDir.DSN == "" {
				return oops.Code("USERDIR_DSN_MISSING").
					Hint("set userdir.dsn, TOKENAUTH_USERDIR_DSN or --userdir-dsn").
					Errorf("migrate needs a postgres user directory")
			}
			logger, err := newLogger(settings, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			pool, err := pgxpool.New(cmd.Context(), settings.UserDir.DSN)
			if err != nil {
				return oops.Code("USERDIR_CONNECT").Wrap(err)
			}
			defer pool.Close()

			users := userdir.NewPostgres(pool, userdir.WithLogger(logger))
			if err := waitFor(cmd.Context(), logger, "postgres", users.Ping); err != nil {
				return err
			}
			if err := users.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("users schema is up to date")
			return nil
		},
	}
}
