package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aimed/aimed/internal/client"
	"github.com/aimed/aimed/internal/config"
	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/credential"
	"github.com/aimed/aimed/internal/platform/summarizer"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "aimed",
		Short:        "AIMED clinical client and development record store",
		SilenceUsage: true,
	}

	root.AddCommand(loginCmd())
	root.AddCommand(registerCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(whoamiCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(queueCmd())
	root.AddCommand(validateTokenCmd())
	root.AddCommand(sosCmd())
	root.AddCommand(devstoreCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// app is what every client subcommand needs.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *client.Client
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	var sum summarizer.Summarizer
	if cfg.SummarizerURL != "" {
		sum = summarizer.NewHTTP(cfg.SummarizerURL, cfg.SummarizerKey)
	}

	c, err := client.New(client.Options{
		BaseURL:      cfg.APIURL,
		Credentials:  credential.NewFileStore(cfg.CredentialFile),
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.RequestTimeout,
		Summarizer:   sum,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, client: c}, nil
}

// restore resumes the persisted session and waits for one refresh so the
// mirror reflects the backend.
func (a *app) restore(ctx context.Context) error {
	ok, err := a.client.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return errors.New("not signed in, run `aimed login` first")
	}
	return a.client.Refresh(ctx)
}

func parseRole(s string) (entity.Role, error) {
	r := entity.Role(strings.ToUpper(strings.TrimSpace(s)))
	if r == "CLINICIAN" {
		r = entity.RoleDoctor
	}
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (patient, doctor, institution)", s)
	}
	return r, nil
}

// -- Session --

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			roleFlag, _ := cmd.Flags().GetString("role")
			role, err := parseRole(roleFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()

			if err := a.client.Login(cmd.Context(), email, password, role); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			u, _ := a.client.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Name, u.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	cmd.Flags().String("role", "patient", "Role: patient, doctor or institution")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			roleFlag, _ := cmd.Flags().GetString("role")
			role, err := parseRole(roleFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()

			if err := a.client.Register(cmd.Context(), name, email, password, role); err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			u, _ := a.client.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) with id %s\n", u.Name, u.Role, u.ID)
			return nil
		},
	}
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	cmd.Flags().String("role", "patient", "Role: patient, doctor or institution")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			a.client.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()

			ok, err := a.client.Restore(cmd.Context())
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			u, _ := a.client.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s %s\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
}

// -- Sync --

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Keep the mirror in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ok, err := a.client.Restore(ctx)
			if err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if !ok {
				return errors.New("not signed in, run `aimed login` first")
			}
			return watch(ctx, a)
		},
	}
}

func watch(ctx context.Context, a *app) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var seen uint64
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("sync interrupted")
			return nil
		case <-ticker.C:
		}

		if _, ok := a.client.Identity(); !ok {
			return errors.New("session ended, sign in again")
		}
		at, lastErr := a.client.LastSync()
		if lastErr != nil {
			a.logger.Warn().Err(lastErr).Time("last_sync", at).Msg("mirror is stale")
			continue
		}
		v := a.client.Version()
		if v == seen {
			continue
		}
		seen = v
		s := a.client.Snapshot()
		a.logger.Info().
			Time("synced_at", at).
			Int("users", len(s.Users)).
			Int("appointments", len(s.Appointments)).
			Int("messages", len(s.Messages)).
			Int("prescriptions", len(s.Prescriptions)).
			Int("medications", len(s.Medications)).
			Int("vitals", len(s.Vitals)).
			Int("alerts", len(s.Alerts)).
			Msg("mirror updated")
	}
}

// -- Role actions --

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the clinician's patient queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}

			clinician, err := a.client.Clinician()
			if err != nil {
				return err
			}
			queue := clinician.Queue()
			if len(queue) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No patients waiting")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tPATIENT\tSTATUS\tTIME\tURGENCY\tAPPOINTMENT")
			for i, ap := range queue {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, ap.PatientName, ap.Status, ap.Time, ap.Urgency, ap.ID)
			}
			return w.Flush()
		},
	}
}

func validateTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-token <token>",
		Short: "Look up a document by its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}

			institution, err := a.client.Institution()
			if err != nil {
				return err
			}
			p, ok := institution.ValidateToken(args[0])
			if !ok {
				return fmt.Errorf("token %q is not valid", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token:       %s\n", p.Token)
			fmt.Fprintf(out, "Type:        %s\n", p.Kind)
			fmt.Fprintf(out, "Patient:     %s\n", p.PatientID)
			fmt.Fprintf(out, "Issued by:   %s\n", p.DoctorName)
			fmt.Fprintf(out, "Issued on:   %s\n", p.Date.Format("2006-01-02"))
			fmt.Fprintf(out, "Valid until: %s\n", p.ValidUntil.Format("2006-01-02"))
			fmt.Fprintf(out, "Content:     %s\n", p.Content)
			if time.Now().After(p.ValidUntil) {
				fmt.Fprintln(out, "WARNING: this document has expired")
			}
			return nil
		},
	}
}

func sosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sos [location]",
		Short: "Raise an emergency alert",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.client.Close()
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}

			patient, err := a.client.Patient()
			if err != nil {
				return err
			}
			location := strings.Join(args, " ")
			alert, err := patient.TriggerSOS(cmd.Context(), location)
			if err != nil {
				return fmt.Errorf("raise alert: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SOS sent (alert %s, location %s)\n", alert.ID, alert.Location)
			return nil
		},
	}
}
