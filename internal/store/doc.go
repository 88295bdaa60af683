// Package store provides persistent storage for cool-squad using SQLite.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - ConversationStore: channels, boards, threads and their messages; it
//     is the conversation.Persister the in-memory conversation store writes
//     through, and LoadSnapshot rebuilds that state on startup
//   - UsageStore: token usage records and aggregation for budgets
//   - LimitStore: budget limits edited at runtime
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory stand-in for tests.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Messages carry an autoincrement sequence so LoadSnapshot returns them in
// append order regardless of timestamp resolution.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//
// All methods accept context.Context for cancellation support.
package store
