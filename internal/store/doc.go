// Package store persists the identities that bearer tokens resolve to.
//
// # Data Models
//
//   - Principal: an identity (user or service) with a status gating access
//   - Role: a named grant on a principal (owner, admin, member, reader)
//   - IssuedToken: the registry entry for a minted token, keyed by its jti,
//     so that individual tokens can be revoked before they expire
//
// SQLiteStore implements PrincipalStore, RoleStore and TokenStore in a single
// struct. MockStore implements the same interfaces in memory for unit tests.
//
// # SQLite Configuration
//
// The store uses SQLite (modernc.org/sqlite, no cgo) with WAL mode for
// concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created on open and migrations run automatically.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrPrincipalNotFound: no principal with that ID
//   - ErrDuplicatePrincipal: principal ID already taken
//   - ErrInvalidRole: role name is not one of ValidRoleNames
//
// All methods accept context.Context for cancellation support.
package store
