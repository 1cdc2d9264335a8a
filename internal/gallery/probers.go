package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/storefront/internal/services"
	"github.com/HerbHall/storefront/internal/version"
)

// Prober reports whether an image path resolves to a loadable image. A
// non-nil error means the check itself failed; callers treat that as absent.
type Prober interface {
	Probe(ctx context.Context, path string) (bool, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, path string) (bool, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}

// isRemote reports whether path is an absolute http(s) or scheme-relative URL.
func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "//")
}

// HTTPProber checks images with HEAD requests, falling back to GET when the
// server does not allow HEAD. Relative paths resolve against a base URL.
type HTTPProber struct {
	client  *http.Client
	base    *url.URL
	limiter *rate.Limiter
}

// HTTPProberOption configures an HTTPProber.
type HTTPProberOption func(*HTTPProber)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPProberOption {
	return func(p *HTTPProber) { p.client = c }
}

// WithBaseURL sets the URL relative image paths resolve against.
func WithBaseURL(u *url.URL) HTTPProberOption {
	return func(p *HTTPProber) { p.base = u }
}

// WithRateLimit caps outbound probe requests per second. rps <= 0 disables
// the limit.
func WithRateLimit(rps float64, burst int) HTTPProberOption {
	return func(p *HTTPProber) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHTTPProber creates an HTTPProber.
func NewHTTPProber(opts ...HTTPProberOption) *HTTPProber {
	p := &HTTPProber{
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, imagePath string) (bool, error) {
	target, err := p.resolve(imagePath)
	if err != nil {
		return false, err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("probe rate limit: %w", err)
		}
	}

	status, contentType, err := p.do(ctx, http.MethodHead, target)
	if err != nil {
		return false, err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, contentType, err = p.do(ctx, http.MethodGet, target)
		if err != nil {
			return false, err
		}
	}

	switch {
	case status >= 200 && status < 300:
		return isImageType(contentType), nil
	case status >= 500:
		return false, fmt.Errorf("probe %s: server returned %d", target, status)
	default:
		return false, nil
	}
}

func (p *HTTPProber) resolve(imagePath string) (string, error) {
	if strings.HasPrefix(imagePath, "//") {
		return "https:" + imagePath, nil
	}
	if isRemote(imagePath) {
		return imagePath, nil
	}
	if p.base == nil {
		return "", fmt.Errorf("probe %q: relative path without base url", imagePath)
	}
	ref, err := url.Parse(imagePath)
	if err != nil {
		return "", fmt.Errorf("probe %q: %w", imagePath, err)
	}
	return p.base.ResolveReference(ref).String(), nil
}

func (p *HTTPProber) do(ctx context.Context, method, target string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return 0, "", fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("probe %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// isImageType accepts a missing content type (servers often omit it on HEAD)
// and any image/* media type.
func isImageType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// FileProber checks images against a local static site root.
type FileProber struct {
	root string
}

// NewFileProber creates a FileProber rooted at dir.
func NewFileProber(dir string) *FileProber {
	return &FileProber{root: dir}
}

// ErrOutsideRoot is returned for paths escaping the static root.
var ErrOutsideRoot = errors.New("path escapes static root")

// Probe implements Prober.
func (p *FileProber) Probe(ctx context.Context, imagePath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if u, err := url.Parse(imagePath); err == nil && u.Path != "" {
		imagePath = u.Path
	}
	rel := strings.TrimPrefix(imagePath, "/")
	if rel == "" || strings.HasPrefix(path.Clean("/"+rel), "/..") || strings.Contains(rel, "\x00") {
		return false, ErrOutsideRoot
	}
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return false, ErrOutsideRoot
		}
	}

	info, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(path.Clean(rel))))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", imagePath, err)
	}
	return info.Mode().IsRegular(), nil
}

// MultiProber routes absolute URLs to Remote and site-relative paths to
// Local. A nil route reports an error.
type MultiProber struct {
	Remote Prober
	Local  Prober
}

// Probe implements Prober.
func (m MultiProber) Probe(ctx context.Context, imagePath string) (bool, error) {
	target := m.Local
	if isRemote(imagePath) {
		target = m.Remote
	}
	if target == nil {
		return false, fmt.Errorf("no prober configured for %q", imagePath)
	}
	return target.Probe(ctx, imagePath)
}

// ProbeCache stores probe outcomes between resolutions.
type ProbeCache interface {
	Get(ctx context.Context, path string) (*services.ProbeRecord, error)
	Put(ctx context.Context, rec services.ProbeRecord) error
}

// CachingProber answers from a ProbeCache while entries are younger than
// ttl and records fresh outcomes. Failed checks are not cached.
type CachingProber struct {
	next   Prober
	cache  ProbeCache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewCachingProber wraps next with a cache. now defaults to time.Now.
func NewCachingProber(next Prober, cache ProbeCache, ttl time.Duration, now func() time.Time, logger *zap.Logger) *CachingProber {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProber{next: next, cache: cache, ttl: ttl, now: now, logger: logger}
}

// Probe implements Prober.
func (c *CachingProber) Probe(ctx context.Context, imagePath string) (bool, error) {
	rec, err := c.cache.Get(ctx, imagePath)
	switch {
	case err == nil:
		if c.now().Sub(rec.CheckedAt) < c.ttl {
			return rec.Present, nil
		}
	case !errors.Is(err, services.ErrNotFound):
		c.logger.Warn("probe cache read failed", zap.String("path", imagePath), zap.Error(err))
	}

	present, err := c.next.Probe(ctx, imagePath)
	if err != nil {
		return false, err
	}
	if putErr := c.cache.Put(ctx, services.ProbeRecord{
		Path:      imagePath,
		Present:   present,
		CheckedAt: c.now().UTC(),
	}); putErr != nil {
		c.logger.Warn("probe cache write failed", zap.String("path", imagePath), zap.Error(putErr))
	}
	return present, nil
}
