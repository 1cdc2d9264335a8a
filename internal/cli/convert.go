package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/importer"
	"github.com/HerbHall/storefront/internal/plugin"
)

// importerFlags override the plugins.importer paths.
type importerFlags struct {
	input  string
	output string
}

func (f *importerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "spreadsheet to convert (default plugins.importer.input)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "dataset to write (default plugins.importer.output)")
}

func (f *importerFlags) apply(cfg *config.ViperConfig) {
	if f.input != "" {
		cfg.Viper().Set("plugins.importer.input", f.input)
	}
	if f.output != "" {
		cfg.Viper().Set("plugins.importer.output", f.output)
	}
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &importerFlags{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the product spreadsheet into the JSON dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			flags.apply(cfg)
			in := cfg.GetString("plugins.importer.input")
			out := cfg.GetString("plugins.importer.output")

			res, err := importer.ConvertFile(in, out)
			if err != nil {
				return WrapExitError(ExitFailure, "convert "+in, err)
			}

			f := newFormatter(rootOpts, cmd)
			if f.JSON() {
				return f.Encode(res)
			}
			return f.Line("Converted %d products in %d categories: %s", res.Products, res.Categories, out)
		},
	}

	flags.register(cmd)
	return cmd
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &importerFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Convert the spreadsheet now and again on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			flags.apply(cfg)
			cfg.Viper().Set("plugins.importer.watch", true)

			logger, err := rootOpts.logger(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "build logger", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, logger)
		},
	}

	flags.register(cmd)
	return cmd
}

// runWatch drives the importer plugin outside the server until ctx is done.
func runWatch(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	m := importer.New()
	if err := m.Init(ctx, plugin.Dependencies{
		Config: cfg.Sub("plugins.importer"),
		Logger: logger.Named("importer"),
	}); err != nil {
		return WrapExitError(ExitCommandError, "init importer", err)
	}
	if err := m.Start(ctx); err != nil {
		return err
	}
	logger.Info("watching spreadsheet", zap.String("input", m.Status().Input))
	<-ctx.Done()
	return m.Stop()
}
