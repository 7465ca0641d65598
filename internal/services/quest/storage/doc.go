// Package storage defines persistence contracts for the quest service.
//
// It covers the per-player record store and its state assembler, the
// location and leaderboard indices, the player registry, and durable quest
// template records. Implementations live in subpackages: redis for shared
// player state, sqlite for templates.
//
// Common error types:
//   - ErrNotFound: requested record is missing
package storage
