package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/catalog"
	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/importer"
	"github.com/HerbHall/storefront/internal/metrics"
	"github.com/HerbHall/storefront/internal/plugin"
	"github.com/HerbHall/storefront/internal/server"
	"github.com/HerbHall/storefront/internal/store"
	"github.com/HerbHall/storefront/internal/version"
)

const defaultShutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and static site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if addr != "" {
				cfg.Viper().Set("server.addr", addr)
			}
			logger, err := rootOpts.logger(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "build logger", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			l, err := net.Listen("tcp", a.opts.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.opts.Addr, err)
			}
			return a.run(ctx, l)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// app is a fully wired storefront process.
type app struct {
	cfg      *config.ViperConfig
	logger   *zap.Logger
	store    *store.SQLiteStore
	metrics  *metrics.Metrics
	registry *plugin.Registry
	catalog  *catalog.Module
	importer *importer.Module
	server   *server.Server
	opts     server.Options
	shutdown time.Duration
}

// newApp opens the store, registers and initializes plugins and builds the
// HTTP server. Plugins are not started.
func newApp(ctx context.Context, cfg *config.ViperConfig, logger *zap.Logger) (*app, error) {
	var opts server.Options
	if err := cfg.Sub("server").Unmarshal(&opts); err != nil {
		return nil, WrapExitError(ExitCommandError, "decode server config", err)
	}
	// Local gallery probes default to the directory the site is served from.
	if cfg.GetString("plugins.catalog.gallery.static_dir") == "" && opts.StaticDir != "" {
		cfg.Viper().Set("plugins.catalog.gallery.static_dir", opts.StaticDir)
	}

	logger.Info("storefront starting", zap.String("version", version.Short()))

	db, err := store.New(cfg.GetString("database.path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    db,
		metrics:  metrics.New(),
		registry: plugin.NewRegistry(logger),
		catalog:  catalog.New(),
		opts:     opts,
		shutdown: cfg.GetDuration("server.shutdown_timeout"),
	}
	a.importer = importer.New(importer.WithAfterConvert(func(ctx context.Context) error {
		err := a.registry.Reload(ctx, "catalog")
		if errors.Is(err, plugin.ErrNotEnabled) {
			return nil
		}
		return err
	}))

	// Compile-time composition.
	for _, p := range []plugin.Plugin{a.catalog, a.importer} {
		if err := a.registry.Register(p); err != nil {
			a.close()
			return nil, err
		}
	}
	deps := plugin.Dependencies{Logger: logger, Store: db, Metrics: a.metrics}
	if err := a.registry.InitAll(ctx, cfg, deps); err != nil {
		a.close()
		return nil, err
	}

	a.server = server.New(opts, a.registry, a.metrics, logger)
	return a, nil
}

// run starts plugins, serves on l until ctx is done and shuts down
// gracefully.
func (a *app) run(ctx context.Context, l net.Listener) error {
	if err := a.registry.StartAll(ctx); err != nil {
		_ = l.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(l) }()
	a.logger.Info("storefront ready", zap.String("addr", l.Addr().String()))

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case serveErr = <-errCh:
		a.logger.Error("server error", zap.Error(serveErr))
	}

	timeout := a.shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	a.registry.StopAll()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.logger.Info("storefront stopped")
	return serveErr
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
