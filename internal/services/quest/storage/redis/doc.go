// Package redis implements the quest record store, state assembler, and the
// location and leaderboard indices on a shared Redis instance.
//
// Each player's aggregate is partitioned across several keys (see keys.go).
// Reads are pipelined into one round trip; writes are recorded in a
// UnitOfWork and committed as one pipeline. The pipeline is not a
// transaction unless WithTransactions is set, so a transport failure can
// leave an update partially applied.
package redis
