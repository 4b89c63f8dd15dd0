// Package records provides the durable record store: an embedded SQLite
// document store for conversation snapshots, indexed by timestamp and
// category, plus the persisted registrations of deferred sync tasks.
//
// Records are application data rather than captured network responses,
// so they live here instead of in a cache tier. Writes are upserts keyed
// by record ID; the last write wins.
package records
