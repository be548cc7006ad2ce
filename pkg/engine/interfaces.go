package engine

import (
	"context"
)

// Handler is the contract every task agent satisfies. Implementations own
// input validation and domain heuristics; the dispatcher owns the audit
// lifecycle around each invocation.
type Handler interface {
	// Name returns the handler's display name for the audit trail.
	Name() string

	// Category returns the task category this handler serves.
	Category() Category

	// Execute runs the handler against the given input and scope. A returned
	// error is recorded as a failed execution; it never crashes the dispatcher.
	Execute(ctx context.Context, input map[string]any, scope Scope) (*HandlerResult, error)
}

// AuditStore is the narrow persistence interface the dispatcher depends on.
// A create is durably visible before any update on the same id is attempted,
// and each update fully replaces the mutable fields it targets. Implementations
// must be safe for concurrent use; each in-flight dispatch owns a distinct id.
type AuditStore interface {
	// CreateExecution persists a new execution record.
	CreateExecution(ctx context.Context, rec *ExecutionRecord) error

	// UpdateExecution applies the finalization patch to a running record.
	UpdateExecution(ctx context.Context, id string, patch ExecutionPatch) error

	// ListExecutions returns records matching the filter, newest first.
	ListExecutions(ctx context.Context, filter Filter) ([]*ExecutionRecord, error)
}
