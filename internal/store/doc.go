// Package store provides the two interchangeable persistence backends for
// OAuth sessions and tokens: an embedded SQLite database and a Redis
// key-value store. Both satisfy the auth.SessionStore and auth.TokenStore
// contracts with identical semantics.
//
// The backends differ only in how expiry is enforced. SQLite has no native
// TTL, so the hourly CleanupExpired sweep is load-bearing there. Redis
// attaches a TTL to every key at write time and expires them natively, so
// its CleanupExpired is a deliberate no-op kept for contract uniformity.
//
// Shared invariants:
//   - "not found" is a nil record, never an error
//   - I/O failures surface as *auth.StorageError
//   - timestamps round-trip losslessly (RFC 3339 with nanoseconds)
//   - PKCE verifiers are persisted but never logged
package store
