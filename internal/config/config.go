// Package config wraps viper behind a small read-only interface handed to
// plugins, and owns storefront's defaults and file/env loading.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the read-only configuration surface plugins depend on.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	IsSet(key string) bool
	Sub(key string) Config
	Unmarshal(target any) error
}

// Compile-time interface guard.
var _ Config = (*ViperConfig)(nil)

// ViperConfig implements Config on top of a viper instance.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil viper behaves as an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *ViperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *ViperConfig) GetStringSlice(key string) []string   { return c.v.GetStringSlice(key) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(key) }

// Sub returns the subtree at key. A missing key yields an empty Config,
// never nil. Each leaf is resolved through the full precedence chain, so a
// section partly set in the file still sees defaults and env overrides for
// the rest.
func (c *ViperConfig) Sub(key string) Config {
	prefix := strings.ToLower(key) + "."
	sub := viper.New()
	for _, k := range c.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			sub.Set(rest, c.v.Get(k))
		}
	}
	return New(sub)
}

// Unmarshal decodes the whole configuration into target using mapstructure
// tags.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// Viper exposes the wrapped instance for the registry and CLI flag binding.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}

// EnvPrefix is prepended to environment overrides: server.addr becomes
// STOREFRONT_SERVER_ADDR.
const EnvPrefix = "STOREFRONT"

// SetDefaults registers every default storefront reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit.rps", 50.0)
	v.SetDefault("server.rate_limit.burst", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 64)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", true)

	v.SetDefault("database.path", "storefront.db")

	v.SetDefault("plugins.catalog.enabled", true)
	v.SetDefault("plugins.catalog.source", "data/products.json")
	v.SetDefault("plugins.catalog.fallback", "sample")
	v.SetDefault("plugins.catalog.language", "es")
	v.SetDefault("plugins.catalog.watch", false)
	v.SetDefault("plugins.catalog.watch_debounce", 500*time.Millisecond)
	v.SetDefault("plugins.catalog.related_limit", 4)
	v.SetDefault("plugins.catalog.placeholder", "https://via.placeholder.com/300x300?text=Producto+{id}")
	v.SetDefault("plugins.catalog.listing_path", "/productos.html")
	v.SetDefault("plugins.catalog.gallery.derive_variants", true)
	v.SetDefault("plugins.catalog.gallery.probe_timeout", 5*time.Second)
	v.SetDefault("plugins.catalog.gallery.concurrency", 8)
	v.SetDefault("plugins.catalog.gallery.base_url", "")
	v.SetDefault("plugins.catalog.gallery.static_dir", "")
	v.SetDefault("plugins.catalog.gallery.cache_ttl", 10*time.Minute)
	v.SetDefault("plugins.catalog.gallery.rate_limit", 0.0)

	v.SetDefault("plugins.importer.enabled", false)
	v.SetDefault("plugins.importer.input", "data/productos.xlsx")
	v.SetDefault("plugins.importer.output", "data/products.json")
	v.SetDefault("plugins.importer.watch", false)
	v.SetDefault("plugins.importer.watch_debounce", time.Second)
}

// Load builds the configuration from defaults, an optional YAML file at path
// and STOREFRONT_* environment variables. An empty path searches the working
// directory for storefront.yaml and tolerates its absence.
func Load(path string) (*ViperConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return New(v), nil
	}

	v.SetConfigName("storefront")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}
