// Package health provides health checking for the agent's stores and its
// upstream origin.
//
// A Checker reports a Status: Healthy, Degraded, or Unhealthy. PingChecker
// adapts anything with a Ping method (the cache and record stores), and
// UpstreamChecker probes the origin over HTTP. The same UpstreamChecker
// drives the connectivity monitor that wakes deferred sync work.
//
// An Aggregator combines checkers. Checkers registered with RegisterOptional
// can only degrade the aggregate: an unreachable origin is an expected state
// for an offline agent, not a reason to fail readiness.
//
//	agg := health.NewAggregator()
//	agg.Register("cache", health.NewPingChecker("cache", boltStore))
//	agg.Register("records", health.NewPingChecker("records", recordStore))
//	agg.RegisterOptional("upstream", health.NewUpstreamChecker(health.UpstreamCheckerConfig{URL: origin}))
//	health.RegisterHandlers(mux, agg)
package health
