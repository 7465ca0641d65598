// Package app runs the quest engine: it applies player actions against the
// shared record store, keeps the location and leaderboard indices in step,
// and broadcasts change events so peer instances can drop stale cache
// entries.
package app
