// Package stores provides SQLite-backed persistence for the dispatch engine.
//
// A single database holds two concerns: the execution audit trail consumed by
// the dispatcher through the engine.AuditStore interface, and scoped domain
// records (suppliers, incidents, tasks, documents and friends) that agents
// read during analysis. The schema is managed with embedded golang-migrate
// migrations; the database runs in WAL mode and is safe for concurrent use by
// in-flight dispatches.
package stores
