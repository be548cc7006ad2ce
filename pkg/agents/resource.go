package agents

import (
	"context"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// ResourceAgent analyzes utilization and allocation of project resources.
type ResourceAgent struct {
	helper  Helper
	records RecordSource
}

// NewResourceAgent creates the resource agent.
func NewResourceAgent(records RecordSource, helper Helper) *ResourceAgent {
	return &ResourceAgent{helper: helper, records: records}
}

func (a *ResourceAgent) Name() string { return "Resource Planner" }

func (a *ResourceAgent) Category() engine.Category { return engine.CategoryResource }

// Execute dispatches on the requested action.
func (a *ResourceAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "utilization":
		return a.utilization(ctx, scope)
	case "overallocation":
		return a.overallocation(ctx, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// utilization computes the average allocated/capacity ratio across scoped
// resources.
func (a *ResourceAgent) utilization(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindResource, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read resources", err)
	}

	var total float64
	measured := 0
	for _, rec := range recs {
		payload := decodePayload(rec)
		allocated, okA := payloadNumber(payload, "allocated")
		capacity, okC := payloadNumber(payload, "capacity")
		if !okA || !okC || capacity <= 0 {
			continue
		}
		total += allocated / capacity
		measured++
	}

	average := 0.0
	if measured > 0 {
		average = total / float64(measured)
	}

	confidence := Confidence(
		Signal{Name: "coverage", Value: ratio(measured, len(recs)), Weight: 2},
		Signal{Name: "data_quality", Value: 0.85},
	)

	output := map[string]any{
		"resource_count":      len(recs),
		"measured":            measured,
		"average_utilization": round2(average),
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// overallocation lists resources allocated beyond their capacity.
func (a *ResourceAgent) overallocation(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindResource, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read resources", err)
	}

	overloaded := []map[string]any{}
	for _, rec := range recs {
		payload := decodePayload(rec)
		allocated, okA := payloadNumber(payload, "allocated")
		capacity, okC := payloadNumber(payload, "capacity")
		if !okA || !okC || capacity <= 0 || allocated <= capacity {
			continue
		}
		overloaded = append(overloaded, map[string]any{
			"resource_id": rec.ID,
			"name":        payloadString(payload, "name"),
			"ratio":       round2(allocated / capacity),
		})
	}

	confidence := Confidence(
		Signal{Name: "rule_coverage", Value: 0.9, Weight: 2},
		Signal{Name: "sample", Value: float64(len(recs)) / 5},
	)

	output := map[string]any{
		"resource_count": len(recs),
		"overallocated":  overloaded,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: len(overloaded) > 0 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
