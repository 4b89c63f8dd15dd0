package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/offlinekit/cache"
	"github.com/jonwraymond/offlinekit/observe"
)

// ErrBadStatus is returned for a same-origin manifest entry that did not
// answer 2xx.
var ErrBadStatus = errors.New("lifecycle: unexpected status")

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clients is the set of open foreground clients.
type Clients interface {
	// ControlledBy counts the clients controlled by generation.
	ControlledBy(generation string) int

	// Claim marks every open client as controlled by generation and
	// returns how many were claimed.
	Claim(generation string) int
}

// Manifest lists what a generation pre-populates at install time.
type Manifest struct {
	// Precache holds URLs fetched into the static tier. Relative URLs
	// resolve against the origin.
	Precache []string

	// Root is the offline navigation document. Once cached it is also
	// kept in the offline-fallback tier. Empty skips that copy.
	Root string
}

// Report summarizes one Deploy.
type Report struct {
	Generation string
	Cached     int
	Skipped    int
	Activated  bool
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Origin is the application origin. Required.
	Origin *url.URL

	// Store holds the cache tiers. Required.
	Store cache.Store

	// Client fetches manifest entries.
	// Default: http.DefaultClient
	Client Doer

	// Clients gates activation on open clients. Nil means activation
	// never waits.
	Clients Clients

	// Concurrency bounds concurrent manifest fetches.
	// Default: 6
	Concurrency int

	// Middleware wraps deploy and activation.
	Middleware *observe.Middleware

	// OnStateChange is called after every transition, synchronously.
	OnStateChange func(Transition)

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

// Controller owns the deployment lifecycle.
//
// Contract:
//   - Concurrency: safe for concurrent use; Deploy, ForceActivate and
//     ClientsChanged are serialized.
//   - Errors: per-URL prefetch failures are logged and skipped; only a
//     failure to open the static tier, or cancellation, aborts Deploy.
type Controller struct {
	config ControllerConfig
	logger observe.Logger

	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current string
	pending string
}

// NewController creates a Controller in StateIdle.
func NewController(config ControllerConfig) (*Controller, error) {
	if config.Store == nil {
		return nil, ErrMissingStore
	}
	if config.Origin == nil || !config.Origin.IsAbs() {
		return nil, ErrMissingOrigin
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 6
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Controller{
		config: config,
		logger: config.Middleware.Logger(),
		state:  StateIdle,
	}, nil
}

// State returns the state of the newest live generation.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Generation returns the controlling generation, or "" before the first
// activation.
func (c *Controller) Generation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Pending returns the installed generation waiting to activate, if any.
func (c *Controller) Pending() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

// Retention returns the tier retention of the controlling generation.
func (c *Controller) Retention() cache.Retention {
	return cache.NewRetention(c.Generation())
}

// Deploy installs generation and activates it unless an older generation
// still controls open clients, in which case it waits.
//
// Redeploying the controlling or waiting generation is a no-op.
func (c *Controller) Deploy(ctx context.Context, generation string, manifest Manifest) (Report, error) {
	generation = strings.TrimSpace(generation)
	if generation == "" {
		return Report{}, ErrMissingGeneration
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	report := Report{Generation: generation}
	meta := observe.OpMeta{Component: "lifecycle", Name: "deploy", Generation: generation}
	_, err := c.config.Middleware.Run(ctx, meta, func(ctx context.Context) (string, error) {
		return c.deploy(ctx, generation, manifest, &report)
	})
	return report, err
}

func (c *Controller) deploy(ctx context.Context, generation string, manifest Manifest, report *Report) (string, error) {
	c.mu.RLock()
	current, pending, prev := c.current, c.pending, c.state
	c.mu.RUnlock()

	if generation == current || generation == pending {
		return "unchanged", nil
	}

	c.move(generation, StateInstalling)

	name := cache.StaticTierName(generation)
	tier, err := c.config.Store.Open(ctx, name)
	if err != nil {
		c.abort(generation, prev)
		return "aborted", fmt.Errorf("%w: open %s: %w", ErrInstallAborted, name, err)
	}

	report.Cached, report.Skipped = c.prefetch(ctx, tier, generation, manifest.Precache)
	if err := ctx.Err(); err != nil {
		c.abort(generation, prev)
		return "aborted", fmt.Errorf("%w: %w", ErrInstallAborted, err)
	}
	if manifest.Root != "" {
		c.keepOfflineDocument(ctx, tier, generation, manifest.Root)
	}

	if pending != "" {
		c.emit(Transition{Generation: pending, From: StateWaiting, To: StateRedundant})
	}
	c.mu.Lock()
	c.pending = generation
	c.mu.Unlock()

	if current != "" && c.config.Clients != nil && c.config.Clients.ControlledBy(current) > 0 {
		c.move(generation, StateWaiting)
		return "waiting", nil
	}

	c.activate(ctx, generation)
	report.Activated = true
	return "activated", nil
}

// ForceActivate activates the waiting generation immediately. Reports
// whether an activation happened.
func (c *Controller) ForceActivate(ctx context.Context) bool {
	return c.activateWaiting(ctx, "force_activate")
}

// ClientsChanged tells the controller how many clients the controlling
// generation still has. Zero ends the wait of a pending generation.
func (c *Controller) ClientsChanged(ctx context.Context, remaining int) bool {
	if remaining > 0 {
		return false
	}
	return c.activateWaiting(ctx, "clients_gone")
}

func (c *Controller) activateWaiting(ctx context.Context, reason string) bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	pending, state := c.pending, c.state
	c.mu.RUnlock()
	if state != StateWaiting || pending == "" {
		return false
	}

	meta := observe.OpMeta{Component: "lifecycle", Name: "activate", Generation: pending, Tags: []string{reason}}
	_, _ = c.config.Middleware.Run(ctx, meta, func(ctx context.Context) (string, error) {
		c.activate(ctx, pending)
		return reason, nil
	})
	return true
}

// activate switches control to generation before deleting garbage tiers,
// so lookups during deletion already see the new visible set.
func (c *Controller) activate(ctx context.Context, generation string) {
	ctx = context.WithoutCancel(ctx)
	c.move(generation, StateActivating)

	c.mu.Lock()
	old := c.current
	c.current = generation
	c.pending = ""
	c.mu.Unlock()

	retention := cache.NewRetention(generation)
	deleted := 0
	names, err := c.config.Store.Names(ctx)
	if err != nil {
		c.logger.Warn(ctx, "list tiers failed", observe.Field{Key: "error", Value: err.Error()})
	}
	for _, name := range retention.Garbage(names) {
		if _, err := c.config.Store.Delete(ctx, name); err != nil {
			c.logger.Warn(ctx, "delete tier failed",
				observe.Field{Key: "tier", Value: name},
				observe.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		deleted++
	}

	claimed := 0
	if c.config.Clients != nil {
		claimed = c.config.Clients.Claim(generation)
	}
	c.move(generation, StateControlling)
	if old != "" {
		c.emit(Transition{Generation: old, From: StateControlling, To: StateRedundant})
	}

	c.logger.Info(ctx, "generation activated",
		observe.Field{Key: "generation", Value: generation},
		observe.Field{Key: "tiers_deleted", Value: deleted},
		observe.Field{Key: "clients_claimed", Value: claimed},
	)
}

func (c *Controller) prefetch(ctx context.Context, tier cache.Tier, generation string, urls []string) (int, int) {
	var cached, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)

	for _, raw := range urls {
		g.Go(func() error {
			if err := c.fetchInto(ctx, tier, raw); err != nil {
				skipped.Add(1)
				c.logger.Warn(ctx, "precache entry skipped",
					observe.Field{Key: "generation", Value: generation},
					observe.Field{Key: "url", Value: raw},
					observe.Field{Key: "error", Value: err.Error()},
				)
				return nil
			}
			cached.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(cached.Load()), int(skipped.Load())
}

// fetchInto stores one manifest entry. Same-origin entries must answer
// 2xx and are stored validated; cross-origin entries are stored opaque
// whatever their status.
func (c *Controller) fetchInto(ctx context.Context, tier cache.Tier, raw string) error {
	target, err := c.config.Origin.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	key, err := cache.RequestKey(http.MethodGet, target)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.config.Client.Do(req)
	if err != nil {
		return err
	}
	captured, err := cache.Capture(resp)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	mode := cache.CaptureOpaque
	if cache.SameOrigin(c.config.Origin, target) {
		if captured.Status < 200 || captured.Status > 299 {
			return fmt.Errorf("%w: %d", ErrBadStatus, captured.Status)
		}
		mode = cache.CaptureValidated
	}

	return tier.Put(ctx, cache.Entry{
		Key:       key,
		Response:  captured,
		Mode:      mode,
		WrittenAt: c.config.Now(),
	})
}

// keepOfflineDocument copies the root document from the static tier into
// the offline-fallback tier. When the root was not cached the previous
// copy stays.
func (c *Controller) keepOfflineDocument(ctx context.Context, tier cache.Tier, generation, root string) {
	warn := func(msg string, err error) {
		fields := []observe.Field{
			{Key: "generation", Value: generation},
			{Key: "root", Value: root},
		}
		if err != nil {
			fields = append(fields, observe.Field{Key: "error", Value: err.Error()})
		}
		c.logger.Warn(ctx, msg, fields...)
	}

	target, err := c.config.Origin.Parse(root)
	if err != nil {
		warn("root document url invalid", err)
		return
	}
	key, err := cache.RequestKey(http.MethodGet, target)
	if err != nil {
		warn("root document url invalid", err)
		return
	}
	entry, ok := tier.Get(ctx, key)
	if !ok || entry.Mode != cache.CaptureValidated {
		warn("root document not cached, keeping previous offline copy", nil)
		return
	}

	fallback, err := c.config.Store.Open(ctx, cache.OfflineFallbackTier)
	if err != nil {
		warn("open offline-fallback tier failed", err)
		return
	}
	entry.Key = cache.OfflineDocumentKey
	entry.WrittenAt = c.config.Now()
	if err := fallback.Put(ctx, entry); err != nil {
		warn("keep offline document failed", err)
	}
}

// abort discards a failed installation and restores the previous state.
func (c *Controller) abort(generation string, prev State) {
	c.mu.Lock()
	c.state = prev
	c.mu.Unlock()
	c.emit(Transition{Generation: generation, From: StateInstalling, To: StateRedundant})
}

func (c *Controller) move(generation string, to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.emit(Transition{Generation: generation, From: from, To: to})
}

func (c *Controller) emit(t Transition) {
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(t)
	}
}
