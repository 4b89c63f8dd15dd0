// Package agent is the single background process that owns the stores and
// drives every other component.
//
// All control work (deployments, client messages, sync wakes, push events
// and install offers) is funneled through one typed trigger queue and
// handled in order by Run. Intercepted requests bypass the queue and are
// served concurrently by the interception engine.
package agent
