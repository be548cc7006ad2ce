package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// RecordSource is the read access an agent needs into scoped domain data.
// It is satisfied by *stores.SQLiteStore.
type RecordSource interface {
	ListRecords(ctx context.Context, filter stores.RecordFilter) ([]*stores.DomainRecord, error)
	CountRecords(ctx context.Context, filter stores.RecordFilter) (int, error)
}

// ReviewPolicy holds the configurable thresholds that gate the
// requires-review flag. The thresholds are policy, not contract: agents
// decide when to raise the flag, the dispatcher maps it onto the terminal
// status.
type ReviewPolicy struct {
	// MinConfidence is the confidence below which output is flagged.
	MinConfidence float64

	// CriticalSeverity is the severity label that always triggers review.
	CriticalSeverity string
}

// DefaultReviewPolicy returns the stock review thresholds.
func DefaultReviewPolicy() ReviewPolicy {
	return ReviewPolicy{
		MinConfidence:    0.7,
		CriticalSeverity: "critical",
	}
}

// Helper bundles the obligations shared by every agent: input validation,
// review gating, and a tagged logger. Agents compose it rather than extend it.
type Helper struct {
	name   string
	log    zerolog.Logger
	policy ReviewPolicy
}

// NewHelper creates a helper tagged with the agent's name.
func NewHelper(name string, log zerolog.Logger, policy ReviewPolicy) Helper {
	return Helper{
		name:   name,
		log:    log.With().Str("agent", name).Logger(),
		policy: policy,
	}
}

// Require fails fast when any of the listed keys is missing from the input.
// This is the only validation performed before domain logic runs.
func (h Helper) Require(input map[string]any, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if _, ok := input[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return engine.NewValidationError(
			fmt.Sprintf("missing required input: %s", strings.Join(missing, ", ")), nil,
		).WithHandler(h.name)
	}
	return nil
}

// Logger returns the agent-tagged structured logger.
func (h Helper) Logger() zerolog.Logger {
	return h.log
}

// NeedsReview reports whether a confidence score falls below the policy
// threshold.
func (h Helper) NeedsReview(confidence float64) bool {
	return confidence < h.policy.MinConfidence
}

// IsCritical reports whether a severity label matches the policy's critical
// level.
func (h Helper) IsCritical(severity string) bool {
	return severity != "" && strings.EqualFold(severity, h.policy.CriticalSeverity)
}

// Signal is one weighted sub-score feeding a confidence calculation.
type Signal struct {
	Name   string
	Value  float64
	Weight float64
}

// Confidence combines sub-signals into a single score in [0, 1] as the
// weighted average of the signal values. Signals without a weight count as
// weight 1; values are clamped to [0, 1] before averaging.
func Confidence(signals ...Signal) float64 {
	if len(signals) == 0 {
		return 0
	}

	var sum, weight float64
	for _, s := range signals {
		w := s.Weight
		if w <= 0 {
			w = 1
		}
		sum += clamp01(s.Value) * w
		weight += w
	}

	return clamp01(sum / weight)
}

// EstimateTokens produces a deterministic size proxy for a payload,
// proportional to its serialized length. It is cost accounting, not billing.
func EstimateTokens(payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 1
	}
	tokens := len(raw) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// stringInput returns the string value of an input key, or "".
func stringInput(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

// scopedFilter builds a record filter for a kind, carrying the request's
// organization and project scope through to the store.
func scopedFilter(kind stores.RecordKind, scope engine.Scope) stores.RecordFilter {
	return stores.RecordFilter{
		Kind:           kind,
		OrganizationID: scope.OrganizationID(),
		ProjectID:      scope.ProjectID(),
	}
}

// decodePayload parses a domain record's JSON payload. Unparseable payloads
// decode to an empty map so one bad row cannot fault a whole analysis.
func decodePayload(rec *stores.DomainRecord) map[string]any {
	out := map[string]any{}
	if rec == nil || rec.Payload == "" {
		return out
	}
	_ = json.Unmarshal([]byte(rec.Payload), &out)
	return out
}

// payloadNumber extracts a numeric payload field.
func payloadNumber(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// payloadString extracts a string payload field.
func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// recordSeverity returns a record's severity label, preferring the indexed
// column over the payload.
func recordSeverity(rec *stores.DomainRecord, payload map[string]any) string {
	if rec.Severity != nil && *rec.Severity != "" {
		return *rec.Severity
	}
	return payloadString(payload, "severity")
}

// unknownAction builds the validation fault for an unrecognized action.
func unknownAction(name, action string) error {
	return engine.NewValidationError(
		fmt.Sprintf("unknown action %q", action), nil,
	).WithHandler(name)
}
