package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/postgres"
	"github.com/phrazzld/dayboard/internal/service/auth"
	"github.com/spf13/cobra"
)

func serveCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the board API and run the scheduler loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup()
			return app.Run(ctx)
		},
	}
}

func migrateCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status|version",
		Short:     "Apply or inspect database schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required for schema migrations")
			}
			db, err := setupAppDatabase(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			return postgres.Migrate(cmd.Context(), db, args[0], log)
		},
	}
}

func runMigrationCmd(load loadFunc) *cobra.Command {
	var owner, date string

	cmd := &cobra.Command{
		Use:   "run-migration",
		Short: "Force a task migration, ignoring the cooldown",
		Long: `Migrate unfinished tasks from past boards onto the target date.

Without --owner every owner with backlog is migrated. The cooldown is
ignored but the run is still recorded in the ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup()

			target, err := parseDateFlag(date, app.policy.Today())
			if err != nil {
				return err
			}
			if owner != "" {
				ownerID, err := uuid.Parse(owner)
				if err != nil {
					return fmt.Errorf("invalid --owner: %w", err)
				}
				result, err := app.executor.Force(cmd.Context(), ownerID, target)
				if result != nil {
					if encErr := writeJSON(cmd.OutOrStdout(), result); encErr != nil {
						return encErr
					}
				}
				return err
			}
			summary, err := app.scheduler.RunNow(cmd.Context(), target)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "migrate a single owner (UUID)")
	cmd.Flags().StringVar(&date, "date", "", "target date YYYY-MM-DD (default: today in the configured zone)")
	return cmd
}

func closeBoardsCmd(load loadFunc) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "close-boards",
		Short: "Close every active board dated before the given day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.cleanup()

			asOf, err := parseDateFlag(date, app.policy.Today())
			if err != nil {
				return err
			}
			result, err := app.closer.ClosePast(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "close boards dated before this day (default: today)")
	return cmd
}

func tokenCmd(load loadFunc) *cobra.Command {
	var user, role, company string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing and operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			identity := auth.Identity{Role: domain.Role(role)}
			if identity.UserID, err = uuid.Parse(user); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if company != "" {
				companyID, err := uuid.Parse(company)
				if err != nil {
					return fmt.Errorf("invalid --company: %w", err)
				}
				identity.CompanyID = &companyID
			}

			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return fmt.Errorf("failed to initialize JWT service: %w", err)
			}
			token, err := jwtService.GenerateToken(cmd.Context(), identity)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID (UUID)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "role: user, supervisor or admin")
	cmd.Flags().StringVar(&company, "company", "", "company ID (UUID)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func parseDateFlag(raw string, fallback civil.Date) (civil.Date, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", raw)
	}
	return d, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
