package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/timebank/internal/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/app"
	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	"github.com/MrJamesThe3rd/timebank/internal/roster"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Building the app applies the schema.
			return opts.withApp(cmd.Context(), func(*app.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

type expireResult struct {
	Expired []uuid.UUID `json:"expired" yaml:"expired"`
}

func newExpireCommand(opts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire services whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}

				now = t
			}

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				services, err := a.Engine.ExpireDue(cmd.Context(), now)
				if err != nil {
					return err
				}

				res := expireResult{Expired: make([]uuid.UUID, len(services))}
				for i, s := range services {
					res.Expired[i] = s.ID
				}

				return opts.write(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "reference time in RFC 3339 (default now)")

	return cmd
}

func newReportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print exchange and settlement statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := analytics.ParseFormat(opts.Format)
			if err != nil {
				return err
			}

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Analytics.Report(cmd.Context(), time.Now())
				if err != nil {
					return err
				}

				return analytics.Write(cmd.OutOrStdout(), report, format)
			})
		},
	}
}

type failureRow struct {
	ID           uuid.UUID              `json:"id" yaml:"id"`
	UserID       uuid.UUID              `json:"user_id" yaml:"user_id"`
	Amount       string                 `json:"amount" yaml:"amount"`
	Reason       timebank.FailureReason `json:"reason" yaml:"reason"`
	Balance      string                 `json:"balance_at_failure" yaml:"balance_at_failure"`
	ServiceID    *uuid.UUID             `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at" yaml:"created_at"`
}

func newFailuresCommand(opts *RootOptions) *cobra.Command {
	var (
		reason string
		user   string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List rejected settlement attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := timebank.FailureFilter{Limit: limit}

			if reason != "" {
				filter.Reason = new(timebank.FailureReason(reason))
			}

			if user != "" {
				id, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("invalid --user %q: %w", user, err)
				}

				filter.UserID = &id
			}

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				failures, err := a.TimeBank.ListFailures(cmd.Context(), filter)
				if err != nil {
					return err
				}

				rows := make([]failureRow, len(failures))
				for i, f := range failures {
					rows[i] = failureRow{
						ID:           f.ID,
						UserID:       f.UserID,
						Amount:       f.Amount.String(),
						Reason:       f.Reason,
						Balance:      f.BalanceAtFailure.String(),
						ServiceID:    f.ServiceID,
						ErrorMessage: f.ErrorMessage,
						CreatedAt:    f.CreatedAt,
					}
				}

				return opts.write(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "only this failure reason")
	cmd.Flags().StringVar(&user, "user", "", "only this member")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")

	return cmd
}

func newRosterCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Member roster tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Open accounts for every member in a CSV roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening roster: %w", err)
			}
			defer f.Close()

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				res, err := roster.NewImporter(a.TimeBank).Import(cmd.Context(), f)
				if err != nil {
					return err
				}

				return opts.write(cmd.OutOrStdout(), res)
			})
		},
	})

	return cmd
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		admin bool
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w: user id %q", exchange.ErrInvalidInput, args[0])
			}

			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}

			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}

			role := ""
			if admin {
				role = auth.RoleAdmin
			}

			token, err := auth.New(cfg.Auth.JWTSecret).Issue(userID, role, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}

	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
