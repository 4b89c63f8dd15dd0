package syncq

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/offlinekit/health"
	"github.com/jonwraymond/offlinekit/observe"
	"github.com/jonwraymond/offlinekit/resilience"
)

// ErrMissingProbe is returned when a Monitor has no probe.
var ErrMissingProbe = errors.New("syncq: probe is required")

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Probe checks reachability of the upstream. Required.
	Probe health.Checker

	// Interval is the time between probes, and how long the monitor stays
	// offline before probing again.
	// Default: 30 seconds
	Interval time.Duration

	// FailureThreshold is the number of consecutive failed probes that
	// mark the network offline.
	// Default: 2
	FailureThreshold int

	// OnOnline is called from Probe after an offline to online transition.
	OnOnline func(ctx context.Context)

	// Logger receives transitions.
	Logger observe.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// Monitor tracks connectivity with a circuit breaker over a probe: a closed
// circuit means online.
type Monitor struct {
	config  MonitorConfig
	breaker *resilience.CircuitBreaker
	logger  observe.Logger
}

// NewMonitor creates a Monitor. It starts online.
func NewMonitor(config MonitorConfig) (*Monitor, error) {
	if config.Probe == nil {
		return nil, ErrMissingProbe
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 2
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	m := &Monitor{
		config: config,
		logger: config.Logger.WithOp(observe.OpMeta{Component: "syncq", Name: "monitor"}),
	}
	m.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:         config.FailureThreshold,
		ResetTimeout:        config.Interval,
		HalfOpenMaxRequests: 1,
		Now:                 config.Now,
		OnStateChange: func(from, to resilience.State) {
			m.logger.Info(context.Background(), "connectivity changed",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		},
	})
	return m, nil
}

// Online reports whether the network is considered reachable.
func (m *Monitor) Online() bool {
	return m.breaker.State() == resilience.StateClosed
}

// Probe runs one check unless the monitor is waiting out an offline
// period, and reports whether the network is online afterwards.
func (m *Monitor) Probe(ctx context.Context) bool {
	wasOnline := m.Online()
	if err := m.breaker.Allow(); err != nil {
		return false
	}
	res := m.config.Probe.Check(ctx)
	m.breaker.Record(res.Err())

	online := m.Online()
	if online && !wasOnline && m.config.OnOnline != nil {
		m.config.OnOnline(ctx)
	}
	return online
}

// Run probes every Interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
