// Package syncq runs deferred work once connectivity returns.
//
// Callers register a tag while offline; the registration is persisted, so
// it survives a restart. When the connectivity Monitor sees the network
// come back it wakes the Queue, which claims every pending tag and runs its
// handler once. A failed run is logged and dropped; the caller re-registers
// to try again.
package syncq
