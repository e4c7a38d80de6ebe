// Package store provides persistence for finished task sessions.
//
// This package is internal to taskpoll. History is an explicit repository
// keyed by user and domain. Every backend implements [Store]:
//
//   - [MemoryStore]: In-process storage, the default
//   - [RedisStore]: One JSON list per key in Redis
//   - [SQLStore]: A single table in a database/sql database (SQLite in the CLI)
//
// All implementations are safe for concurrent use and return entries oldest
// first. A positive limit keeps only the newest entries per key.
package store
