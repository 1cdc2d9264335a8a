package gallery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of one gallery resolution.
type State int32

const (
	StateUnchecked State = iota
	StateChecking
	StateResolvedWithImages
	StateResolvedEmpty
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateChecking:
		return "checking"
	case StateResolvedWithImages:
		return "resolved_with_images"
	case StateResolvedEmpty:
		return "resolved_empty"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Gallery is the verified image set of one product.
type Gallery struct {
	State      State    `json:"state"`
	Main       string   `json:"main"`
	Thumbnails []string `json:"thumbnails"`
	Checked    int      `json:"checked"`
}

// Images returns the verified images in candidate order.
func (g Gallery) Images() []string {
	return g.Thumbnails
}

// Observer receives resolution telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ProbeFinished(outcome string)
	GalleryResolved(state string, elapsed time.Duration)
}

// Probe outcomes reported to an Observer.
const (
	OutcomePresent = "present"
	OutcomeMissing = "missing"
	OutcomeError   = "error"
)

// DefaultProbeTimeout bounds a single existence check.
const DefaultProbeTimeout = 5 * time.Second

// DefaultConcurrency caps in-flight probes per resolution.
const DefaultConcurrency = 8

// Resolver verifies candidate images concurrently.
type Resolver struct {
	prober      Prober
	timeout     time.Duration
	concurrency int
	observer    Observer
	logger      *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProbeTimeout sets the per-probe deadline. Zero disables it.
func WithProbeTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithConcurrency caps in-flight probes. n <= 0 means unbounded.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) { r.concurrency = n }
}

// WithObserver attaches telemetry.
func WithObserver(o Observer) ResolverOption {
	return func(r *Resolver) { r.observer = o }
}

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver around prober.
func NewResolver(prober Prober, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		prober:      prober,
		timeout:     DefaultProbeTimeout,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Resolve probes every candidate and waits for all of them. Duplicate
// candidates are probed once. A failed or timed-out probe counts as missing.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) Gallery {
	start := time.Now()
	unique := dedupe(candidates)
	present := make([]bool, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, path := range unique {
		g.Go(func() error {
			present[i] = r.probe(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	verified := make([]string, 0, len(unique))
	for i, ok := range present {
		if ok {
			verified = append(verified, unique[i])
		}
	}

	out := Gallery{
		State:      StateResolvedEmpty,
		Thumbnails: verified,
		Checked:    len(unique),
	}
	if len(verified) > 0 {
		out.State = StateResolvedWithImages
		out.Main = MainImage(verified)
	}
	if r.observer != nil {
		r.observer.GalleryResolved(out.State.String(), time.Since(start))
	}
	r.logger.Debug("gallery resolved",
		zap.Int("candidates", len(unique)),
		zap.Int("verified", len(verified)),
		zap.Stringer("state", out.State),
	)
	return out
}

func (r *Resolver) probe(ctx context.Context, path string) bool {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ok, err := r.prober.Probe(ctx, path)
	outcome := OutcomeMissing
	switch {
	case err != nil:
		outcome = OutcomeError
		ok = false
		r.logger.Debug("image probe failed", zap.String("path", path), zap.Error(err))
	case ok:
		outcome = OutcomePresent
	}
	if r.observer != nil {
		r.observer.ProbeFinished(outcome)
	}
	return ok
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Resolution is an in-flight Resolve started with Start. State moves from
// StateUnchecked to StateChecking once probing begins; until Done is closed
// Gallery blocks.
type Resolution struct {
	state  atomic.Int32
	done   chan struct{}
	once   sync.Once
	result Gallery
}

// Start launches Resolve in the background.
func (r *Resolver) Start(ctx context.Context, candidates []string) *Resolution {
	res := &Resolution{done: make(chan struct{})}
	go func() {
		res.state.Store(int32(StateChecking))
		g := r.Resolve(ctx, candidates)
		res.once.Do(func() {
			res.result = g
			res.state.Store(int32(g.State))
			close(res.done)
		})
	}()
	return res
}

// State reports the current lifecycle state.
func (res *Resolution) State() State {
	return State(res.state.Load())
}

// Done is closed once the gallery is resolved.
func (res *Resolution) Done() <-chan struct{} {
	return res.done
}

// Gallery waits for the resolution or ctx, whichever comes first. An already
// finished ctx wins even when the resolution is done.
func (res *Resolution) Gallery(ctx context.Context) (Gallery, error) {
	if err := ctx.Err(); err != nil {
		return Gallery{State: res.State(), Thumbnails: []string{}}, err
	}
	select {
	case <-res.done:
		return res.result, nil
	case <-ctx.Done():
		return Gallery{State: res.State(), Thumbnails: []string{}}, ctx.Err()
	}
}
