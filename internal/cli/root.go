// Package cli implements the storefront command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the storefront CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront catalog engine",
		Long: `Storefront serves a product catalog: filtered listings, product detail,
related items and verified image galleries, backed by a JSON dataset that
can be generated from a spreadsheet.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the error once
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file (default ./storefront.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewRelatedCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// loadConfig reads the configuration named by --config.
func (o *RootOptions) loadConfig() (*config.ViperConfig, error) {
	return config.Load(o.ConfigPath)
}

// logger builds the process logger from the logging section. --verbose
// forces debug level.
func (o *RootOptions) logger(cfg config.Config) (*zap.Logger, error) {
	lopts, err := logging.OptionsFrom(cfg)
	if err != nil {
		return nil, err
	}
	if o.Verbose {
		lopts.Level = "debug"
	}
	return logging.New(lopts)
}

// quietLogger is used by one-shot commands whose stdout carries results.
// Only warnings and above are logged, and never to stdout.
func (o *RootOptions) quietLogger(cmd *cobra.Command) *zap.Logger {
	level := zap.WarnLevel
	if o.Verbose {
		level = zap.DebugLevel
	}
	return logging.Stderr(cmd.ErrOrStderr(), level)
}
