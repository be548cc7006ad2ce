package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// DueDiligenceAgent screens vendors for red flags before contracting.
type DueDiligenceAgent struct {
	helper  Helper
	records RecordSource
}

// NewDueDiligenceAgent creates the due-diligence agent.
func NewDueDiligenceAgent(records RecordSource, helper Helper) *DueDiligenceAgent {
	return &DueDiligenceAgent{helper: helper, records: records}
}

func (a *DueDiligenceAgent) Name() string { return "Due Diligence Screener" }

func (a *DueDiligenceAgent) Category() engine.Category { return engine.CategoryDueDiligence }

// screeningFlags are the boolean payload fields that raise red flags, with
// their risk contribution.
var screeningFlags = map[string]float64{
	"sanctions_hit":      0.6,
	"litigation_pending": 0.3,
	"insolvency_signal":  0.4,
	"adverse_media":      0.2,
}

// Execute dispatches on the requested action.
func (a *DueDiligenceAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "vendor_screening":
		return a.vendorScreening(ctx, input, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// vendorScreening checks a supplier record for red flags and track record.
func (a *DueDiligenceAgent) vendorScreening(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "vendor_id"); err != nil {
		return nil, err
	}
	vendorID := stringInput(input, "vendor_id")

	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindSupplier, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read suppliers", err)
	}

	var payload map[string]any
	for _, rec := range recs {
		if rec.ID == vendorID {
			payload = decodePayload(rec)
			break
		}
	}
	if payload == nil {
		return nil, engine.NewHandlerError(
			fmt.Sprintf("vendor not found: %s", vendorID), nil)
	}

	// Map iteration order is random; keep the flag list stable.
	checks := make([]string, 0, len(screeningFlags))
	for flag := range screeningFlags {
		checks = append(checks, flag)
	}
	sort.Strings(checks)

	flags := []string{}
	var risk float64
	for _, flag := range checks {
		if b, ok := payload[flag].(bool); ok && b {
			flags = append(flags, flag)
			risk += screeningFlags[flag]
		}
	}
	risk = clamp01(risk)

	yearsActive, hasYears := payloadNumber(payload, "years_active")
	if hasYears && yearsActive < 2 {
		flags = append(flags, "limited_track_record")
		risk = clamp01(risk + 0.15)
	}

	confidence := Confidence(
		Signal{Name: "source_coverage", Value: 0.85, Weight: 2},
		Signal{Name: "profile_completeness", Value: boolSignal(hasYears)},
	)

	output := map[string]any{
		"vendor_id":  vendorID,
		"flags":      flags,
		"risk_score": round2(risk),
		"risk_level": riskLevel(risk),
		"cleared":    len(flags) == 0,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: len(flags) > 0 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}
