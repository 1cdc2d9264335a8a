package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/HerbHall/storefront/internal/gallery"
	"github.com/HerbHall/storefront/internal/metrics"
	"github.com/HerbHall/storefront/internal/plugin"
	"github.com/HerbHall/storefront/internal/services"
	"github.com/HerbHall/storefront/internal/source"
	"github.com/HerbHall/storefront/internal/watch"
	pkgcatalog "github.com/HerbHall/storefront/pkg/catalog"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Reloadable    = (*Module)(nil)
)

// GallerySettings configures image verification.
type GallerySettings struct {
	DeriveVariants bool          `mapstructure:"derive_variants"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	BaseURL        string        `mapstructure:"base_url"`
	StaticDir      string        `mapstructure:"static_dir"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RateLimit      float64       `mapstructure:"rate_limit"`
}

// Settings is the plugins.catalog configuration section.
type Settings struct {
	Source        string          `mapstructure:"source"`
	Fallback      string          `mapstructure:"fallback"`
	Language      string          `mapstructure:"language"`
	Watch         bool            `mapstructure:"watch"`
	WatchDebounce time.Duration   `mapstructure:"watch_debounce"`
	RelatedLimit  int             `mapstructure:"related_limit"`
	Placeholder   string          `mapstructure:"placeholder"`
	ListingPath   string          `mapstructure:"listing_path"`
	Gallery       GallerySettings `mapstructure:"gallery"`
}

// loadState records the outcome of the most recent load for health reports.
type loadState struct {
	at       time.Time
	err      error
	fallback bool
	products int
}

// Module is the catalog plugin: it owns the current catalog snapshot and
// serves listing, detail, related and gallery routes.
type Module struct {
	logger   *zap.Logger
	settings Settings
	fallback source.Fallback
	lang     language.Tag
	loader   *source.Loader
	metrics  *metrics.Metrics
	probes   services.ProbeRepository
	resolver *gallery.Resolver
	watcher  *watch.FileWatcher

	engine atomic.Pointer[Engine]
	state  atomic.Pointer[loadState]
	mu     sync.Mutex // serializes reloads
}

// New creates the catalog module.
func New() *Module {
	m := &Module{logger: zap.NewNop(), loader: &source.Loader{}}
	m.engine.Store(NewEngine(nil))
	return m
}

func (m *Module) Info() plugin.Info {
	return plugin.Info{
		Name:        "catalog",
		Version:     "1.0.0",
		Description: "Product listing, detail, related items and gallery resolution",
	}
}

// Init reads settings, opens the probe cache and performs the initial load.
// A failed load is not fatal unless the fallback policy is "none".
func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	if deps.Logger != nil {
		m.logger = deps.Logger
	}
	m.metrics = deps.Metrics

	if err := deps.Config.Unmarshal(&m.settings); err != nil {
		return fmt.Errorf("decode catalog settings: %w", err)
	}
	fb, err := source.ParseFallback(m.settings.Fallback)
	if err != nil {
		return err
	}
	m.fallback = fb

	m.lang = language.Spanish
	if m.settings.Language != "" {
		tag, err := language.Parse(m.settings.Language)
		if err != nil {
			return fmt.Errorf("catalog language %q: %w", m.settings.Language, err)
		}
		m.lang = tag
	}
	if m.settings.RelatedLimit <= 0 {
		m.settings.RelatedLimit = DefaultRelatedLimit
	}

	if deps.Store != nil {
		repo, err := services.NewSQLiteProbeRepository(ctx, deps.Store)
		if err != nil {
			return err
		}
		m.probes = repo
	}

	prober, err := m.buildProber()
	if err != nil {
		return err
	}
	opts := []gallery.ResolverOption{
		gallery.WithProbeTimeout(m.settings.Gallery.ProbeTimeout),
		gallery.WithConcurrency(m.settings.Gallery.Concurrency),
		gallery.WithLogger(m.logger.Named("gallery")),
	}
	if m.metrics != nil {
		opts = append(opts, gallery.WithObserver(m.metrics))
	}
	m.resolver = gallery.NewResolver(prober, opts...)

	if err := m.Reload(ctx); err != nil && m.fallback == source.FallbackNone {
		return err
	}
	return nil
}

// buildProber assembles local and remote probers and, when a store is
// available, the persistent cache in front of them.
func (m *Module) buildProber() (gallery.Prober, error) {
	gs := m.settings.Gallery
	httpOpts := []gallery.HTTPProberOption{gallery.WithRateLimit(gs.RateLimit, 1)}
	if gs.BaseURL != "" {
		base, err := url.Parse(gs.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("gallery base_url: %w", err)
		}
		httpOpts = append(httpOpts, gallery.WithBaseURL(base))
	}
	remote := gallery.NewHTTPProber(httpOpts...)

	var local gallery.Prober = remote
	if gs.StaticDir != "" {
		local = gallery.NewFileProber(gs.StaticDir)
	}
	var p gallery.Prober = gallery.MultiProber{Remote: remote, Local: local}
	if m.probes != nil && gs.CacheTTL > 0 {
		p = gallery.NewCachingProber(p, m.probes, gs.CacheTTL, nil, m.logger.Named("probe-cache"))
	}
	return p, nil
}

// Start begins watching a local dataset file when configured.
func (m *Module) Start(ctx context.Context) error {
	if !m.settings.Watch {
		return nil
	}
	if isRemote(m.settings.Source) {
		m.logger.Warn("watch ignored for remote dataset", zap.String("source", m.settings.Source))
		return nil
	}
	w, err := watch.New(m.settings.Source, m.settings.WatchDebounce, m.Reload, m.logger.Named("watch"))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	m.watcher = w
	return nil
}

func (m *Module) Stop() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Stop()
	m.watcher = nil
	return err
}

// Reload loads the dataset and swaps in a new engine. On failure the
// fallback policy decides the replacement: sample and empty swap, none keeps
// the current snapshot. The load error is returned in every failure case.
func (m *Module) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cat, err := m.loader.LoadWithFallback(ctx, m.settings.Source, m.fallback, m.logger)
	st := &loadState{at: time.Now(), err: err, fallback: err != nil && cat != nil}
	if cat != nil {
		m.engine.Store(NewEngine(cat, WithLanguage(m.lang)))
	}
	eng := m.Engine()
	st.products = eng.Catalog().Len()
	m.state.Store(st)

	complete := len(eng.Complete())
	if m.metrics != nil {
		outcome := "ok"
		switch {
		case err != nil && cat == nil:
			outcome = "error"
		case err != nil:
			outcome = "fallback"
		}
		m.metrics.CatalogLoaded(outcome, complete, st.products-complete)
	}

	if err != nil {
		return err
	}
	m.logger.Info("catalog loaded",
		zap.String("source", m.settings.Source),
		zap.Int("products", st.products),
		zap.Int("complete", complete),
	)
	return nil
}

// Engine returns the engine for the current snapshot.
func (m *Module) Engine() *Engine {
	return m.engine.Load()
}

// Health reports degraded while a fallback catalog is being served.
func (m *Module) Health(context.Context) plugin.HealthStatus {
	st := m.state.Load()
	if st == nil {
		return plugin.HealthStatus{Status: plugin.StatusDegraded, Message: "catalog not loaded"}
	}
	details := map[string]string{
		"source":    m.settings.Source,
		"products":  fmt.Sprint(st.products),
		"loaded_at": st.at.UTC().Format(time.RFC3339),
	}
	if st.fallback {
		details["fallback"] = string(m.fallback)
	}
	if st.err != nil {
		var le *source.LoadError
		msg := st.err.Error()
		if errors.As(st.err, &le) && errors.Is(le.Err, os.ErrNotExist) {
			msg = "dataset file missing"
		}
		return plugin.HealthStatus{Status: plugin.StatusDegraded, Message: msg, Details: details}
	}
	return plugin.HealthStatus{Status: plugin.StatusHealthy, Details: details}
}

// Gallery resolves the verified images of a product. Probing runs in the
// background; when ctx ends first the still-checking gallery is returned with
// ctx's error.
func (m *Module) Gallery(ctx context.Context, p pkgcatalog.Product) (gallery.Gallery, error) {
	res := m.resolver.Start(ctx, gallery.Candidates(p, m.settings.Gallery.DeriveVariants))
	return res.Gallery(ctx)
}

func isRemote(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
