package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"runclub/internal/adapters/storage"
	"runclub/internal/application/orchestrators"
)

func seedAdminCmd() *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first admin account if none exists",
		Long:  "Creates an admin account and member profile. Does nothing once any account exists. Flags fall back to the admin section of the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if email == "" {
				email = app.cfg.Admin.Email
			}
			if password == "" {
				password = app.cfg.Admin.Password
			}
			if name == "" {
				name = app.cfg.Admin.FullName
			}
			if email == "" || password == "" {
				return errors.New("admin email and password are required (flags or RUNCLUB_ADMIN_EMAIL / RUNCLUB_ADMIN_PASSWORD)")
			}

			if err := storage.Migrate(ctx, app.db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			stores := newStores(app.db)
			m, err := orchestrators.ExecuteSeedAdmin(ctx, orchestrators.SeedAdminInput{
				Email:    email,
				Password: password,
				FullName: name,
			}, orchestrators.SeedAdminDeps{
				AccountStore: stores.AccountStore,
				MemberStore:  stores.MemberStore,
				GenerateID:   func() string { return uuid.New().String() },
				Now:          time.Now,
			})
			if errors.Is(err, orchestrators.ErrAlreadySeeded) {
				fmt.Fprintln(cmd.OutOrStdout(), "accounts already exist; nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (member %s)\n", m.Email, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&password, "password", "", "Admin password")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name")
	return cmd
}
