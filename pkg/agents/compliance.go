package agents

import (
	"context"
	"strings"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// ComplianceAgent monitors regulatory records and finds framework gaps.
type ComplianceAgent struct {
	helper  Helper
	records RecordSource
}

// NewComplianceAgent creates the compliance agent.
func NewComplianceAgent(records RecordSource, helper Helper) *ComplianceAgent {
	return &ComplianceAgent{helper: helper, records: records}
}

func (a *ComplianceAgent) Name() string { return "Compliance Monitor" }

func (a *ComplianceAgent) Category() engine.Category { return engine.CategoryCompliance }

// Execute dispatches on the requested action.
func (a *ComplianceAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "monitor":
		return a.monitor(ctx, scope)
	case "gap_analysis":
		return a.gapAnalysis(ctx, input, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// monitor raises an alert for every expired or non-compliant record in scope.
func (a *ComplianceAgent) monitor(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindCompliance, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read compliance records", err)
	}

	alerts := []map[string]any{}
	critical := false
	for _, rec := range recs {
		payload := decodePayload(rec)
		status := strings.ToLower(payloadString(payload, "status"))
		if status != "expired" && status != "non_compliant" {
			continue
		}

		severity := recordSeverity(rec, payload)
		if a.helper.IsCritical(severity) {
			critical = true
		}
		alerts = append(alerts, map[string]any{
			"record_id": rec.ID,
			"framework": payloadString(payload, "framework"),
			"status":    status,
			"severity":  severity,
		})
	}

	confidence := Confidence(
		Signal{Name: "rule_coverage", Value: 0.95, Weight: 2},
		Signal{Name: "data_freshness", Value: 0.85},
	)

	output := map[string]any{
		"alerts":        alerts,
		"total_records": len(recs),
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: critical || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// gapAnalysis compares required frameworks against those present in scope.
func (a *ComplianceAgent) gapAnalysis(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "frameworks"); err != nil {
		return nil, err
	}

	required := stringSliceInput(input, "frameworks")
	if len(required) == 0 {
		return nil, engine.NewValidationError("frameworks must be a non-empty list", nil).
			WithHandler(a.Name())
	}

	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindCompliance, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read compliance records", err)
	}

	present := map[string]bool{}
	for _, rec := range recs {
		payload := decodePayload(rec)
		if fw := payloadString(payload, "framework"); fw != "" {
			present[strings.ToLower(fw)] = true
		}
	}

	missing := []string{}
	for _, fw := range required {
		if !present[strings.ToLower(fw)] {
			missing = append(missing, fw)
		}
	}

	coverage := 1 - float64(len(missing))/float64(len(required))
	confidence := Confidence(
		Signal{Name: "rule_coverage", Value: 0.9, Weight: 2},
		Signal{Name: "sample", Value: float64(len(recs)) / 5},
	)

	output := map[string]any{
		"required":   required,
		"missing":    missing,
		"coverage":   round2(coverage),
		"gap_exists": len(missing) > 0,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: coverage < 0.5 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// stringSliceInput coerces an input value into a string slice. Both YAML and
// JSON decoders hand lists over as []any.
func stringSliceInput(input map[string]any, key string) []string {
	switch v := input[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
