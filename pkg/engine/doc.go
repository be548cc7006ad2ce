// Package engine implements the task dispatch core: a registry of pluggable
// analysis handlers, a dispatcher that invokes one handler per request, and
// the audit contract recording every invocation's full lifecycle.
//
// The lifecycle of a dispatch is strict: the audit record is created with
// status "running" before the handler is invoked, and finalized to exactly one
// terminal status (completed, failed, or requires_review) after it returns,
// on every exit path including handler panics and caller cancellation.
// Terminal records are immutable history.
//
// Handler failures never escape the dispatcher as errors. Callers distinguish
// "ran but needs human review" from "could not run" through the outcome's
// Success flag and the record status, not through error propagation. Fan-out
// via ExecuteMany isolates members fully and preserves input order.
package engine
