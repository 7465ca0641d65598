// Package timeouts defines shared timeout constants used across questworld
// processes. The backing-store client owns connection-level timeouts; no
// operation in the core defines its own.
package timeouts

import "time"

// RedisDial caps the wait time when dialing the shared store.
const RedisDial = 2 * time.Second

// RedisRead caps a single read from the shared store.
const RedisRead = 3 * time.Second

// RedisWrite caps a single write to the shared store.
const RedisWrite = 3 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
