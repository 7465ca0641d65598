// Package pubsub provides a transport-agnostic publish/subscribe abstraction.
//
// Delivery is at-most-once: a subscriber only sees messages published while it
// is subscribed, and slow subscribers may lose messages. Brokers never replay.
// Business code depends on Publisher/Subscriber (or a typed Topic) so the
// transport (in-process, Redis, or a queue) can be swapped without changes.
package pubsub
