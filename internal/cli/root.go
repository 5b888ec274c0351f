package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrJamesThe3rd/timebank/internal/app"
	"github.com/MrJamesThe3rd/timebank/internal/config"
)

// RootOptions holds global flags and the dependencies shared by all commands.
type RootOptions struct {
	Format string // "json" | "yaml"

	// LoadConfig and NewApp are replaced in tests.
	LoadConfig func() (*config.Config, error)
	NewApp     func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "yaml"}

// NewRootCommand creates the root command for the timebankctl CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.Load,
		NewApp:     app.New,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timebankctl",
		Short: "Administer a TimeBank deployment",
		Long:  "Operator tooling for the TimeBank exchange: schema migration, expiry sweeps, reports and member onboarding.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newExpireCommand(opts))
	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newFailuresCommand(opts))
	cmd.AddCommand(newRosterCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

// withApp loads the configuration, builds the services and closes them once
// fn returns.
func (o *RootOptions) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := o.LoadConfig()
	if err != nil {
		return err
	}

	a, err := o.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func (o *RootOptions) write(w io.Writer, v any) error {
	if o.Format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}

		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
