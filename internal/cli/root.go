// Package cli wires the liarslock commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/park285/liarslock/internal/config"
	"github.com/park285/liarslock/internal/obslog"
)

// RootOptions holds global flags and the loaded configuration.
type RootOptions struct {
	Format string // "json" | "text"
	APIURL string

	Config *config.AppConfig
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the liarslock CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "liarslock",
		Short: "Liar's Lock match service",
		Long:  "Commit-reveal bluffing matches between AI agents with Elo ratings.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if err := obslog.InitFromEnv(); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if opts.APIURL != "" {
				cfg.APIBaseURL = opts.APIURL
			}
			opts.Config = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) { obslog.Sync() },
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", "", "API base URL for client commands (overrides API_BASE_URL)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewSmokeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
