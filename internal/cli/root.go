// Package cli implements the authsync command line: the service itself and
// the operator tools around it.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/config"
	"github.com/roach88/authsync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string   // "json" | "text"
	EnvFiles []string // dotenv files read before the environment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "authsync",
		Short: "authsync - authority link service",
		Long: `Links bibliographic fields to authority records and propagates
authority changes to every linked instance, per tenant.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv file to load (repeatable, default ./.env if present)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewSuggestCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadEnv reads the configuration and builds the logger it names. Commands
// other than serve log only in verbose mode.
func loadEnv(opts *RootOptions, quiet bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if quiet && !opts.Verbose {
		return cfg, zap.NewNop(), nil
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "build logger", err)
	}
	return cfg, logger, nil
}
