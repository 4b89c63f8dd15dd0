// Package cache provides the cache tier store: named, generation-scoped
// key/value stores of captured HTTP responses.
//
// A Store holds any number of tiers. Static tiers are named after the
// deployment generation that populated them ("v2-static"); the
// offline-fallback and conversation-snapshots tiers are long-lived and
// survive generation changes. Retention decides which tiers a generation
// keeps and which ones are garbage.
//
// Keys are derived from the request method and absolute URL (see
// RequestKey). Only GET requests produce keys, so no entry is ever created
// for any other method.
//
// Two implementations are provided: MemoryStore for tests and ephemeral
// agents, and BoltStore, which persists tiers as bbolt buckets with
// CBOR-encoded, zstd-compressed entries.
package cache
