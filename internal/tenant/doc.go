// Package tenant carries the acting tenant through a context.Context and runs
// work under another tenant's identity.
//
// Every persisted entity belongs to exactly one tenant. Code that reads or
// writes tenant data resolves the tenant with FromContext; code that acts on
// behalf of another tenant (consortium replay, background jobs) switches
// identity through an Executor rather than by mutating shared state.
//
// Registry lazily opens one value per tenant (typically a store plus the
// services built on it) and closes them all on shutdown.
package tenant
