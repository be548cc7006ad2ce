package engine

import (
	"time"
)

// Category identifies the task family a handler is responsible for.
type Category string

const (
	// CategoryProcurement covers supplier analysis, bid comparison, and tender risk.
	CategoryProcurement Category = "procurement"

	// CategoryCompliance covers regulatory monitoring and gap analysis.
	CategoryCompliance Category = "compliance"

	// CategorySafety covers incident trend analysis and risk assessment.
	CategorySafety Category = "safety"

	// CategoryResource covers utilization and allocation analysis.
	CategoryResource Category = "resource"

	// CategoryDocument covers classification and metadata extraction.
	CategoryDocument Category = "document"

	// CategoryDecision covers option scoring and recommendations.
	CategoryDecision Category = "decision"

	// CategoryCommunication covers summarization and notice drafting.
	CategoryCommunication Category = "communication"

	// CategoryDueDiligence covers vendor screening and background checks.
	CategoryDueDiligence Category = "due_diligence"

	// CategoryScheduling covers slippage and critical-path analysis.
	CategoryScheduling Category = "scheduling"
)

// Categories lists every known task category in registration order.
func Categories() []Category {
	return []Category{
		CategoryProcurement,
		CategoryCompliance,
		CategorySafety,
		CategoryResource,
		CategoryDocument,
		CategoryDecision,
		CategoryCommunication,
		CategoryDueDiligence,
		CategoryScheduling,
	}
}

// Status represents the lifecycle state of an execution record.
// Running is the only non-terminal state; terminal records are immutable history.
type Status string

const (
	// StatusRunning indicates the handler has been invoked but not finished.
	StatusRunning Status = "running"

	// StatusCompleted indicates the handler finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the handler faulted, was cancelled, or its input
	// failed validation.
	StatusFailed Status = "failed"

	// StatusRequiresReview indicates the handler finished successfully but
	// flagged its output for human follow-up.
	StatusRequiresReview Status = "requires_review"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRequiresReview
}

// Scope carries opaque scoping and correlation data attached to a request.
// The dispatcher copies well-known keys onto the execution record and stores
// the remainder untouched; it never validates or interprets them.
type Scope map[string]any

// Well-known scope keys.
const (
	ScopeOrganizationID = "organization_id"
	ScopeProjectID      = "project_id"
)

func (s Scope) stringValue(key string) string {
	if s == nil {
		return ""
	}
	if v, ok := s[key].(string); ok {
		return v
	}
	return ""
}

// OrganizationID returns the organization scoping key, if present.
func (s Scope) OrganizationID() string {
	return s.stringValue(ScopeOrganizationID)
}

// ProjectID returns the project scoping key, if present.
func (s Scope) ProjectID() string {
	return s.stringValue(ScopeProjectID)
}

// Correlation returns every scope entry that is not a well-known scoping key.
// These are persisted opaquely on the execution record for later lookup.
func (s Scope) Correlation() map[string]any {
	if len(s) == 0 {
		return nil
	}
	out := make(map[string]any)
	for k, v := range s {
		if k == ScopeOrganizationID || k == ScopeProjectID {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Request is a caller-supplied dispatch request.
type Request struct {
	// Category selects the handler to invoke.
	Category Category `json:"category" validate:"required"`

	// Scope is opaque scoping data, trusted as already authorized.
	Scope Scope `json:"scope,omitempty"`

	// Input is the handler-specific parameter payload.
	Input map[string]any `json:"input,omitempty"`

	// RequestedBy is an optional actor identifier for the audit trail.
	RequestedBy string `json:"requested_by,omitempty"`
}

// HandlerResult is what a handler returns on success.
type HandlerResult struct {
	// Output is the handler's result payload.
	Output map[string]any `json:"output"`

	// Confidence is the handler's reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// RequiresReview flags output that warrants human follow-up. The
	// dispatcher, not the handler, maps this onto the terminal status.
	RequiresReview bool `json:"requires_review,omitempty"`

	// TokensUsed is a deterministic size proxy for cost accounting.
	TokensUsed int `json:"tokens_used"`
}

// Outcome is the caller-facing result of a dispatch.
type Outcome struct {
	// Success is true when the handler ran to completion, including runs
	// that require review. It is false when the task could not run.
	Success bool `json:"success"`

	// ExecutionID is the audit record id, empty when no record was created.
	ExecutionID string `json:"execution_id,omitempty"`

	// Status is the terminal record status, empty when no record was created.
	Status Status `json:"status,omitempty"`

	Output         map[string]any `json:"output,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	RequiresReview bool           `json:"requires_review,omitempty"`
	Error          string         `json:"error,omitempty"`

	// ExecutionTimeMs is the wall-clock handler duration. Zero for requests
	// rejected before a handler was invoked.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	TokensUsed *int `json:"tokens_used,omitempty"`
}

// ExecutionRecord is the persisted audit row for one dispatch.
type ExecutionRecord struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	HandlerName string   `json:"handler_name"`

	// Scoping fields copied from the request scope.
	OrganizationID *string `json:"organization_id,omitempty"`
	ProjectID      *string `json:"project_id,omitempty"`

	// Correlation holds the remaining scope keys as an opaque JSON blob.
	Correlation *string `json:"correlation,omitempty"`

	Status Status `json:"status"`

	// Input is a JSON copy of the request payload for replay and audit.
	Input string `json:"input"`

	// Output is the handler result payload; nil while running or on failure.
	Output *string `json:"output,omitempty"`

	// Confidence is the handler-reported certainty; nil on failure.
	Confidence *float64 `json:"confidence,omitempty"`

	// Error is present iff Status is failed.
	Error *string `json:"error,omitempty"`

	TokensUsed *int `json:"tokens_used,omitempty"`

	RequestedBy *string `json:"requested_by,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ExecutionTimeMs is CompletedAt minus StartedAt; nil while running.
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ExecutionPatch is the single finalization write applied to a running record.
// Each field fully replaces the stored value it targets.
type ExecutionPatch struct {
	Status          Status
	Output          *string
	Confidence      *float64
	Error           *string
	TokensUsed      *int
	CompletedAt     time.Time
	ExecutionTimeMs int64
}

// Filter selects execution records from the audit store.
type Filter struct {
	Category       Category `json:"category,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	Status         Status   `json:"status,omitempty"`

	// Limit caps the number of records returned, newest first.
	// Zero means the dispatcher default.
	Limit int `json:"limit,omitempty"`
}
