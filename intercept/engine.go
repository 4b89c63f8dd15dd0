// Package intercept decides, per request, whether a response comes from
// the network, a cache tier or a synthesized fallback.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/offlinekit/cache"
	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/resilience"
)

// Sentinel errors for the engine.
var (
	ErrMissingStore  = errors.New("intercept: cache store is required")
	ErrMissingOrigin = errors.New("intercept: origin must be an absolute url")
	ErrBadPattern    = errors.New("intercept: invalid deny pattern")
	ErrBadRoot       = errors.New("intercept: root must be an absolute path")
)

// Source names the branch that produced a response.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceRoot        Source = "root"
	SourceDenied      Source = "denied"
	SourceOffline     Source = "offline"
	SourcePassthrough Source = "passthrough"
)

// SourceHeader carries the Source on proxied responses.
const SourceHeader = "X-Offlinekit-Source"

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TierView reports which tiers are currently visible.
type TierView interface {
	Retention() cache.Retention
}

// Config configures an Engine.
type Config struct {
	// Origin is the application origin. Required.
	Origin *url.URL

	// Store holds the cache tiers. Required.
	Store cache.Store

	// Tiers supplies the visible tiers. Nil means only the long-lived
	// tiers are visible and nothing is written through.
	Tiers TierView

	// Client issues network requests.
	// Default: http.DefaultClient
	Client Doer

	// Deny lists removed paths, exact or path.Match globs.
	Deny []string

	// Root is the path of the document served to offline navigations.
	// Default: "/"
	Root string

	// NetworkTimeout bounds each network request.
	// Default: 0 (transport timeouts only)
	NetworkTimeout time.Duration

	// WriteConcurrency bounds concurrent write-through operations.
	// Default: 8
	WriteConcurrency int

	// Middleware records one operation per intercepted request.
	Middleware *observe.Middleware
}

// Engine applies the interception policy.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: intercepted requests always resolve to a response; only
//     passthrough requests return transport errors.
//   - Context: request cancellation cancels that request only;
//     write-through runs detached from it.
type Engine struct {
	config  Config
	deny    atomic.Pointer[[]string]
	root    atomic.Pointer[string]
	timeout *resilience.Timeout
	writes  *resilience.Executor
	logger  observe.Logger
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Store == nil {
		return nil, ErrMissingStore
	}
	if config.Origin == nil || !config.Origin.IsAbs() {
		return nil, ErrMissingOrigin
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.WriteConcurrency <= 0 {
		config.WriteConcurrency = 8
	}
	if config.Middleware == nil {
		config.Middleware = observe.NopMiddleware()
	}

	e := &Engine{
		config: config,
		logger: config.Middleware.Logger(),
	}
	if err := e.SetDeny(config.Deny); err != nil {
		return nil, err
	}
	if config.Root == "" {
		config.Root = "/"
	}
	if err := e.SetRoot(config.Root); err != nil {
		return nil, err
	}
	if config.NetworkTimeout > 0 {
		e.timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: config.NetworkTimeout})
	}
	e.writes = resilience.NewExecutor(
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: config.WriteConcurrency,
			MaxWait:       time.Second,
		})),
		resilience.WithTimeout(30*time.Second),
		resilience.WithErrorHandler(func(err error) {
			e.logger.Warn(context.Background(), "write-through failed", observe.Field{Key: "error", Value: err.Error()})
		}),
	)
	return e, nil
}

// CleanDeny trims patterns, drops blanks and rejects malformed globs.
func CleanDeny(patterns []string) ([]string, error) {
	clean := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := path.Match(p, "/"); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
		}
		clean = append(clean, p)
	}
	return clean, nil
}

// CleanRoot trims root and checks that it is an absolute path.
func CleanRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if !strings.HasPrefix(root, "/") {
		return "", fmt.Errorf("%w: %q", ErrBadRoot, root)
	}
	return root, nil
}

// SetDeny replaces the deny-list. Patterns are validated before any is
// applied.
func (e *Engine) SetDeny(patterns []string) error {
	clean, err := CleanDeny(patterns)
	if err != nil {
		return err
	}
	e.deny.Store(&clean)
	return nil
}

// SetRoot replaces the offline navigation document path.
func (e *Engine) SetRoot(root string) error {
	root, err := CleanRoot(root)
	if err != nil {
		return err
	}
	e.root.Store(&root)
	return nil
}

// Root returns the offline navigation document path.
func (e *Engine) Root() string {
	return *e.root.Load()
}

// Denied reports whether urlPath matches the deny-list.
func (e *Engine) Denied(urlPath string) bool {
	for _, p := range *e.deny.Load() {
		if p == urlPath {
			return true
		}
		if ok, _ := path.Match(p, urlPath); ok {
			return true
		}
	}
	return false
}

// Intercepted reports whether req is subject to the policy: a same-origin,
// non-range GET over http(s).
func (e *Engine) Intercepted(req *http.Request) bool {
	if req.Method != http.MethodGet || req.Header.Get("Range") != "" {
		return false
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return false
	}
	return cache.SameOrigin(e.config.Origin, req.URL)
}

// Handle resolves req, whose URL must be absolute. The returned response
// body is always fully buffered.
func (e *Engine) Handle(ctx context.Context, req *http.Request) (*http.Response, Source, error) {
	if !e.Intercepted(req) {
		resp, err := e.config.Client.Do(req.WithContext(ctx))
		return resp, SourcePassthrough, err
	}

	var resp *http.Response
	meta := observe.OpMeta{Component: "intercept", Name: "fetch", Generation: e.retention().Generation}
	outcome, _ := e.config.Middleware.Run(ctx, meta, func(ctx context.Context) (string, error) {
		var source Source
		resp, source = e.intercept(ctx, req)
		return string(source), nil
	})
	return resp, Source(outcome), nil
}

// Wait blocks until pending write-through operations finish.
func (e *Engine) Wait() {
	e.writes.Wait()
}

func (e *Engine) retention() cache.Retention {
	if e.config.Tiers == nil {
		return cache.NewRetention("")
	}
	return e.config.Tiers.Retention()
}

type cacheHit struct {
	entry cache.Entry
	ok    bool
}

func (e *Engine) intercept(ctx context.Context, req *http.Request) (*http.Response, Source) {
	if e.Denied(req.URL.Path) {
		return notFound(req), SourceDenied
	}

	retention := e.retention()
	key, keyErr := cache.KeyForRequest(req)

	hits := make(chan cacheHit, 1)
	go func() {
		if keyErr != nil {
			hits <- cacheHit{}
			return
		}
		entry, _, ok := cache.Match(ctx, e.config.Store, key, retention.Visible()...)
		hits <- cacheHit{entry: entry, ok: ok}
	}()

	resp, captured, netErr := e.fetch(ctx, req)
	if netErr == nil && resp.StatusCode == http.StatusOK && e.basic(req, resp) {
		if keyErr == nil && retention.Generation != "" {
			e.writeThrough(ctx, retention.StaticTier(), key, captured)
		}
		return resp, SourceNetwork
	}

	var hit cacheHit
	select {
	case hit = <-hits:
	case <-ctx.Done():
	}
	if hit.ok {
		return hit.entry.Response.HTTPResponse(req), SourceCache
	}

	if netErr == nil {
		return resp, SourceNetwork
	}
	e.logger.Debug(ctx, "network failed", observe.Field{Key: "error", Value: netErr.Error()})

	if navigation(req) {
		rootKey, _ := cache.KeyForURL(e.config.Origin.ResolveReference(&url.URL{Path: e.Root()}).String())
		if entry, _, ok := cache.Match(ctx, e.config.Store, rootKey, retention.Visible()...); ok {
			return entry.Response.HTTPResponse(req), SourceRoot
		}
		if entry, ok := e.offlineDocument(ctx); ok {
			return entry.Response.HTTPResponse(req), SourceRoot
		}
	}
	return offline(req), SourceOffline
}

// offlineDocument returns the last root document kept by an installation.
// It outlives the static tier it was fetched into.
func (e *Engine) offlineDocument(ctx context.Context) (cache.Entry, bool) {
	tier, ok := e.config.Store.Lookup(ctx, cache.OfflineFallbackTier)
	if !ok {
		return cache.Entry{}, false
	}
	return tier.Get(ctx, cache.OfflineDocumentKey)
}

// fetch issues req and buffers the response body.
func (e *Engine) fetch(ctx context.Context, req *http.Request) (*http.Response, cache.Response, error) {
	var (
		resp     *http.Response
		captured cache.Response
	)
	op := func(ctx context.Context) error {
		out := req.Clone(ctx)
		if out.Header == nil {
			out.Header = http.Header{}
		}
		observe.InjectHeaders(ctx, out.Header)
		r, err := e.config.Client.Do(out)
		if err != nil {
			return err
		}
		c, err := cache.Capture(r)
		if err != nil {
			return err
		}
		resp, captured = r, c
		return nil
	}

	var err error
	if e.timeout != nil {
		err = e.timeout.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return nil, cache.Response{}, err
	}
	return resp, captured, nil
}

// basic reports whether the final response URL, after redirects, is
// same-origin.
func (e *Engine) basic(req *http.Request, resp *http.Response) bool {
	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return cache.SameOrigin(e.config.Origin, final)
}

func (e *Engine) writeThrough(ctx context.Context, tierName, key string, captured cache.Response) {
	entry := cache.Entry{
		Key:       key,
		Response:  captured.Clone(),
		Mode:      cache.CaptureValidated,
		WrittenAt: time.Now(),
	}
	e.writes.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		// A tier deleted by a concurrent activation stays deleted.
		tier, ok := e.config.Store.Lookup(ctx, tierName)
		if !ok {
			return nil
		}
		if err := tier.Put(ctx, entry); err != nil {
			return fmt.Errorf("put %s: %w", tierName, err)
		}
		return nil
	})
}

func navigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
