// Package source loads the product dataset from a file or URL and applies
// the configured fallback when loading fails.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/storefront/internal/version"
	"github.com/HerbHall/storefront/pkg/catalog"
)

// maxDocumentSize caps how much of a remote dataset is read.
const maxDocumentSize = 32 << 20

// LoadError reports a failed dataset load. Err is the underlying cause.
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load catalog from %q: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrStatus is wrapped when a remote dataset answers with a non-2xx status.
var ErrStatus = errors.New("unexpected HTTP status")

// Loader fetches datasets. The zero value uses a 30s HTTP client.
type Loader struct {
	Client *http.Client
}

var defaultLoader = &Loader{}

// Load fetches and parses the dataset at location with the default Loader.
func Load(ctx context.Context, location string) (*catalog.Catalog, error) {
	return defaultLoader.Load(ctx, location)
}

// Load fetches and parses the dataset at location, a file path or an
// http(s) URL. Every failure is a *LoadError.
func (l *Loader) Load(ctx context.Context, location string) (*catalog.Catalog, error) {
	data, err := l.fetch(ctx, location)
	if err != nil {
		return nil, &LoadError{Location: location, Err: err}
	}
	cat, err := catalog.Parse(data)
	if err != nil {
		return nil, &LoadError{Location: location, Err: err}
	}
	return cat, nil
}

func (l *Loader) fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.New("empty location")
	}
	if !isURL(location) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	}

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Fallback selects what replaces a dataset that failed to load.
type Fallback string

const (
	FallbackSample Fallback = "sample"
	FallbackEmpty  Fallback = "empty"
	FallbackNone   Fallback = "none"
)

// ParseFallback validates a configured fallback policy. "" means sample.
func ParseFallback(s string) (Fallback, error) {
	switch f := Fallback(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FallbackSample, nil
	case FallbackSample, FallbackEmpty, FallbackNone:
		return f, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", s)
	}
}

// LoadWithFallback loads location and, on failure, logs a warning and
// substitutes the policy's catalog. The returned error is the load error and
// is non-nil whenever the dataset itself could not be loaded; with
// FallbackNone the catalog is nil.
func (l *Loader) LoadWithFallback(ctx context.Context, location string, policy Fallback, logger *zap.Logger) (*catalog.Catalog, error) {
	cat, err := l.Load(ctx, location)
	if err == nil {
		return cat, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch policy {
	case FallbackNone:
		return nil, err
	case FallbackEmpty:
		logger.Warn("catalog load failed, serving empty catalog",
			zap.String("location", location), zap.Error(err))
		return catalog.Empty(), err
	default:
		sample, sampleErr := catalog.Sample()
		if sampleErr != nil {
			logger.Error("built-in sample catalog unusable, serving empty catalog", zap.Error(sampleErr))
			return catalog.Empty(), err
		}
		logger.Warn("catalog load failed, serving built-in sample",
			zap.String("location", location), zap.Error(err))
		return sample, err
	}
}

// LoadWithFallback uses the default Loader.
func LoadWithFallback(ctx context.Context, location string, policy Fallback, logger *zap.Logger) (*catalog.Catalog, error) {
	return defaultLoader.LoadWithFallback(ctx, location, policy, logger)
}
