package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// UpstreamCheckerConfig configures the upstream reachability probe.
type UpstreamCheckerConfig struct {
	// URL is probed with a HEAD request. Required.
	URL string

	// Client issues the probe. Default: a client with Timeout.
	Client *http.Client

	// Timeout bounds one probe.
	// Default: 5 seconds
	Timeout time.Duration

	// DegradedLatency marks a reachable but slow upstream as degraded.
	// Default: 0 (disabled)
	DegradedLatency time.Duration
}

// UpstreamChecker probes whether the origin can be reached at all.
//
// Any HTTP response, including 4xx and 5xx, counts as reachable: the
// question is connectivity, not application health.
type UpstreamChecker struct {
	config UpstreamCheckerConfig
}

// NewUpstreamChecker creates a new upstream checker.
func NewUpstreamChecker(config UpstreamCheckerConfig) *UpstreamChecker {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Client == nil {
		config.Client = &http.Client{Timeout: config.Timeout}
	}
	return &UpstreamChecker{config: config}
}

// Name returns the name of this checker.
func (u *UpstreamChecker) Name() string {
	return "upstream"
}

// Check issues one HEAD request against the configured URL.
func (u *UpstreamChecker) Check(ctx context.Context) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, u.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.config.URL, nil)
	if err != nil {
		return Unhealthy("invalid upstream url", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	resp, err := u.config.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Unhealthy("upstream unreachable", err).WithDuration(elapsed)
	}
	_ = resp.Body.Close()

	details := map[string]any{"status_code": resp.StatusCode}
	if u.config.DegradedLatency > 0 && elapsed > u.config.DegradedLatency {
		return Degraded("upstream slow").WithDetails(details).WithDuration(elapsed)
	}
	return Healthy("upstream reachable").WithDetails(details).WithDuration(elapsed)
}

var _ Checker = (*UpstreamChecker)(nil)
