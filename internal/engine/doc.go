// Package engine runs the background work of the link engine.
//
// Three pieces live here:
//
// Consumer is a single-writer event loop. Authority change events from
// every tenant are enqueued to one FIFO queue, and Run handles them one at a
// time on its own goroutine, each under the identity of the tenant it came
// from. Handling errors are logged and the loop continues; an event that
// failed is not retried.
//
// Relay drains the per-tenant event outbox to the broker. Rows of one tenant
// are delivered in append order; the first failure stops that tenant's batch
// so later rows do not overtake it.
//
// Scheduler runs periodic jobs such as the relay and the archive purge on
// cron schedules.
//
// Every enqueued event is stamped with a sequence number from a Clock, so log
// lines of one run can be ordered without relying on wall-clock time.
package engine
