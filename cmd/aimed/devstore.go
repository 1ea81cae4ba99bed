package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aimed/aimed/internal/config"
	"github.com/aimed/aimed/internal/platform/db"
	"github.com/aimed/aimed/internal/platform/devstore"
	"github.com/aimed/aimed/internal/platform/middleware"
)

func devstoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devstore",
		Short: "Run the development record store",
	}
	cmd.AddCommand(devstoreServeCmd())
	cmd.AddCommand(devstoreMigrateCmd())
	return cmd
}

func devstoreServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backend API (in memory unless DATABASE_URL is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var store devstore.RecordStore
			if cfg.DatabaseURL != "" {
				pool, err := db.NewPool(ctx, poolConfig(cfg))
				if err != nil {
					return err
				}
				if migrate {
					n, err := db.NewMigrator(pool, devstore.Migrations()).Up(ctx)
					if err != nil {
						pool.Close()
						return fmt.Errorf("migration failed: %w", err)
					}
					logger.Info().Int("applied", n).Msg("migrations applied")
				}
				store = devstore.NewPGStore(pool)
				logger.Info().Msg("using postgres record store")
			} else {
				store = devstore.NewMemoryStore()
				logger.Warn().Msg("DATABASE_URL not set, records are kept in memory only")
			}
			defer store.Close()

			srv, err := devstore.NewServer(store, devstore.Config{
				SigningKey: cfg.SigningKey(),
				RateLimit: middleware.RateLimitConfig{
					RequestsPerSecond: cfg.RateLimitRPS,
					BurstSize:         cfg.RateLimitBurst,
				},
			}, logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx, ":"+cfg.DevstorePort)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving (postgres only)")
	return cmd
}

func devstoreMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the record tables in DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetBool("status")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, devstore.Migrations())
			if status {
				return printMigrationStatus(ctx, cmd, migrator)
			}

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.Flags().Bool("status", false, "Show migration status instead of applying")
	return cmd
}

func printMigrationStatus(ctx context.Context, cmd *cobra.Command, m *db.Migrator) error {
	statuses, err := m.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		state := "pending"
		appliedAt := ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, appliedAt)
	}
	return nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}
