package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func runMigrate(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Migrate(a.logger.WithContext(ctx)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info().Msg("migrations up to date")
	return nil
}

func runRemind(ctx context.Context, job string, out io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.reminderRunner().Run(a.logger.WithContext(ctx), job)
	if err != nil {
		return fmt.Errorf("run %s reminders: %w", job, err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func secretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage OAuth client credentials stored in the database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set NAME VALUE",
		Short: "Store a secret such as GOOGLE_CLIENT_ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Secrets.Set(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("set secret %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	})
	return cmd
}
