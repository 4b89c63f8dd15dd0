// Package resilience provides the guards the agent puts around network and
// storage work.
//
//   - Circuit Breaker: tracks upstream reachability. The connectivity
//     monitor feeds probe results into one and treats a closed circuit as
//     online.
//
//   - Rate Limiter: a token bucket backed by golang.org/x/time/rate, used to
//     throttle inbound bus messages per client.
//
//   - Bulkhead: bounds concurrent operations with a weighted semaphore, used
//     for background cache write-through.
//
//   - Timeout: bounds a single operation, used for upstream fetches.
//
// Patterns compose through an Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 4})),
//	    resilience.WithTimeout(10*time.Second),
//	)
//	exec.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
//	    return tier.Put(ctx, entry)
//	})
//	exec.Wait()
package resilience
