package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shopping-lists/internal/database"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.RunMigrations(a.cfg.DatabasePath, a.logger.Named("database")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date.\n", a.cfg.DatabasePath)
			return nil
		},
	}
}

func newInitRemoteCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "init-remote",
		Short: "Create the Back4App classes and seed the ID sequences",
		Long: `Create the Back4App classes and seed the ID sequences.

Safe to run repeatedly. Run it once per application before serving with
STORE_BACKEND=back4app, and again after importing objects by other means.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, v := range []struct{ name, value string }{
				{"BACK4APP_APP_ID", a.cfg.Back4AppAppID},
				{"BACK4APP_CLIENT_KEY", a.cfg.Back4AppClientKey},
				{"BACK4APP_MASTER_KEY", a.cfg.Back4AppMasterKey},
			} {
				if v.value == "" {
					return fmt.Errorf("%s environment variable not set", v.name)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := a.openRemote().EnsureSchema(ctx); err != nil {
				return fmt.Errorf("failed to initialize remote schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Remote schema is ready.")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the schema setup")
	return cmd
}
