package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Freeeeeet/clinic_scheduler/internal/config"
	"github.com/Freeeeeet/clinic_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/clinic_scheduler/internal/service"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			migrator, err := rt.migrator()
			if err != nil {
				return err
			}
			defer migrator.Close()

			return migrator.Run(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			migrator, err := rt.migrator()
			if err != nil {
				return err
			}
			defer migrator.Close()

			return migrator.Status(cmd.Context())
		},
	})

	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Run slot jobs once",
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate slots for one week (default: upcoming weeks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			week, _ := cmd.Flags().GetString("week")

			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.services()
			if err != nil {
				return err
			}

			var created int
			if week == "" {
				created, err = svc.schedule.GenerateUpcoming(cmd.Context())
			} else {
				start, perr := time.Parse("2006-01-02", week)
				if perr != nil {
					return fmt.Errorf("--week must be YYYY-MM-DD: %w", perr)
				}
				created, err = svc.schedule.GenerateSlots(cmd.Context(), start)
				week = service.FormatDay(service.WeekStart(start))
			}
			if err != nil {
				return err
			}

			if week == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d slot(s).\n", created)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d slot(s) for the week of %s.\n", created, week)
			}
			return nil
		},
	}
	generate.Flags().String("week", "", "Any date within the target week (YYYY-MM-DD)")
	cmd.AddCommand(generate)

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired slots nobody booked",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.services()
			if err != nil {
				return err
			}

			deleted, err := svc.schedule.PurgeExpiredUnbooked(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d slot(s).\n", deleted)
			return nil
		},
	})

	return cmd
}

// tokenCmd mints a bearer token for local testing.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("sub")
			role, _ := cmd.Flags().GetString("role")
			studentID, _ := cmd.Flags().GetInt64("student-id")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.IsDev() {
				return fmt.Errorf("token issuing is only available in development")
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			tok, err := httpapi.IssueToken(httpapi.JWTConfig{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}, subject, role, studentID, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "dev", "Token subject (doctor id or user id)")
	cmd.Flags().String("role", httpapi.RoleAdmin, "Role claim")
	cmd.Flags().Int64("student-id", 0, "Student id claim")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
