// Package plugin defines the module contract storefront components implement
// and the registry that drives their lifecycle.
package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/config"
	"github.com/HerbHall/storefront/internal/metrics"
	"github.com/HerbHall/storefront/internal/store"
)

// Route represents an HTTP route exposed by a plugin. Path is relative to
// /api/v1/{plugin} and may use ServeMux wildcards.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Info describes a plugin for the /plugins listing.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Dependencies are the shared services handed to every plugin at Init.
// Config is already scoped to plugins.{name}.
type Dependencies struct {
	Config  config.Config
	Logger  *zap.Logger
	Store   store.Store
	Metrics *metrics.Metrics
}

// Plugin defines the interface that all storefront modules must implement.
type Plugin interface {
	// Info returns the plugin's identity. Name is its unique route prefix.
	Info() Info

	// Init wires the plugin to its configuration and shared services.
	Init(ctx context.Context, deps Dependencies) error

	// Start begins the plugin's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the plugin.
	Stop() error

	// Routes returns the HTTP routes this plugin exposes.
	Routes() []Route
}

// HealthStatus is a plugin's self-reported health.
type HealthStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Health states.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthChecker is implemented by plugins that report their health status.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Reloadable is implemented by plugins that can refresh their data without
// a restart.
type Reloadable interface {
	Reload(ctx context.Context) error
}
