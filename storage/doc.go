// Package storage defines the session and account storage interfaces used by
// the login core.
//
//   - SessionStore: short-lived values scoped to a browser session
//     (authorization state, connect sessions, pending registrations)
//   - AccountStore: the account lookups and updates the reconciler needs
//   - AccountCreator: account creation for confirmed registrations
//
// It also provides SealedValue helpers used by backends that encrypt
// session values at rest.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory sessions and accounts for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed session storage
//   - storage/sqlite: durable account storage on SQLite
//   - storage/mock: mock stores for unit testing
package storage
