package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/metrics"
	"github.com/HerbHall/storefront/internal/plugin"
	"github.com/HerbHall/storefront/internal/server"
	"github.com/HerbHall/storefront/internal/watch"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Settings is the plugins.importer configuration section.
type Settings struct {
	Input         string        `mapstructure:"input"`
	Output        string        `mapstructure:"output"`
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// Status reports the most recent conversion.
type Status struct {
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Watching   bool      `json:"watching"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
	Products   int       `json:"products"`
	Categories int       `json:"categories"`
}

// Module is the importer plugin: it converts the product workbook into the
// JSON dataset on request or whenever the workbook changes.
type Module struct {
	logger       *zap.Logger
	settings     Settings
	metrics      *metrics.Metrics
	watcher      *watch.FileWatcher
	afterConvert func(context.Context) error

	mu     sync.Mutex // serializes conversions and guards status
	status Status
}

// Option configures a Module.
type Option func(*Module)

// WithAfterConvert registers fn to run after every successful conversion,
// typically the catalog reload.
func WithAfterConvert(fn func(context.Context) error) Option {
	return func(m *Module) { m.afterConvert = fn }
}

// New creates the importer module.
func New(opts ...Option) *Module {
	m := &Module{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Info() plugin.Info {
	return plugin.Info{
		Name:        "importer",
		Version:     "1.0.0",
		Description: "Converts the product workbook into the catalog dataset",
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	if deps.Logger != nil {
		m.logger = deps.Logger
	}
	m.metrics = deps.Metrics
	if err := deps.Config.Unmarshal(&m.settings); err != nil {
		return fmt.Errorf("decode importer settings: %w", err)
	}
	if m.settings.Input == "" || m.settings.Output == "" {
		return errors.New("importer: input and output are required")
	}
	m.status = Status{Input: m.settings.Input, Output: m.settings.Output}
	return nil
}

// Start converts once and then watches the workbook when watch is enabled.
// A missing or unreadable workbook at startup is logged, not fatal.
func (m *Module) Start(ctx context.Context) error {
	if !m.settings.Watch {
		return nil
	}
	if _, err := m.Run(ctx); err != nil {
		m.logger.Warn("initial conversion failed", zap.Error(err))
	}
	w, err := watch.New(m.settings.Input, m.settings.WatchDebounce, m.onChange, m.logger.Named("watch"))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return err
	}
	m.watcher = w
	m.mu.Lock()
	m.status.Watching = true
	m.mu.Unlock()
	return nil
}

func (m *Module) Stop() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Stop()
	m.watcher = nil
	m.mu.Lock()
	m.status.Watching = false
	m.mu.Unlock()
	return err
}

func (m *Module) onChange(ctx context.Context) error {
	_, err := m.Run(ctx)
	return err
}

// Run converts the configured workbook and, on success, invokes the
// after-convert hook. A hook failure is logged and does not fail the run.
func (m *Module) Run(ctx context.Context) (Result, error) {
	m.mu.Lock()
	res, err := ConvertFile(m.settings.Input, m.settings.Output)
	m.status.LastRun = time.Now()
	if err != nil {
		m.status.LastError = err.Error()
	} else {
		m.status.LastError = ""
		m.status.Products = res.Products
		m.status.Categories = res.Categories
	}
	m.mu.Unlock()

	if m.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.metrics.ConversionFinished(outcome)
	}
	if err != nil {
		m.logger.Warn("conversion failed", zap.String("input", m.settings.Input), zap.Error(err))
		return Result{}, err
	}
	m.logger.Info("workbook converted",
		zap.String("input", m.settings.Input),
		zap.String("output", m.settings.Output),
		zap.Int("products", res.Products),
		zap.Int("categories", res.Categories),
	)

	if m.afterConvert != nil {
		if herr := m.afterConvert(ctx); herr != nil {
			m.logger.Warn("post-conversion hook failed", zap.Error(herr))
		}
	}
	return res, nil
}

// Status returns a snapshot of the last conversion.
func (m *Module) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Health is degraded after a failed conversion.
func (m *Module) Health(context.Context) plugin.HealthStatus {
	st := m.Status()
	if st.LastError != "" {
		return plugin.HealthStatus{
			Status:  plugin.StatusDegraded,
			Message: st.LastError,
			Details: map[string]string{"input": st.Input},
		}
	}
	return plugin.HealthStatus{Status: plugin.StatusHealthy}
}

// Routes implements plugin.Plugin.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodPost, Path: "/convert", Handler: m.handleConvert},
		{Method: http.MethodGet, Path: "/status", Handler: m.handleStatus},
	}
}

// handleConvert runs a conversion on demand.
//
//	@Summary	Convert the product workbook
//	@Tags		importer
//	@Produce	json
//	@Success	200 {object} Result
//	@Failure	404 {object} server.Problem
//	@Failure	422 {object} server.Problem
//	@Router		/importer/convert [post]
func (m *Module) handleConvert(w http.ResponseWriter, r *http.Request) {
	res, err := m.Run(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, os.ErrNotExist):
		server.NotFound(w, "workbook "+m.settings.Input+" not found", r.URL.Path)
	default:
		server.Unprocessable(w, err.Error(), r.URL.Path)
	}
}

func (m *Module) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.Status())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
