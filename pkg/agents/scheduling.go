package agents

import (
	"context"
	"strings"
	"time"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// SchedulingAgent analyzes task slippage and milestone health.
type SchedulingAgent struct {
	helper  Helper
	records RecordSource

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewSchedulingAgent creates the scheduling agent.
func NewSchedulingAgent(records RecordSource, helper Helper) *SchedulingAgent {
	return &SchedulingAgent{helper: helper, records: records, now: time.Now}
}

func (a *SchedulingAgent) Name() string { return "Schedule Analyst" }

func (a *SchedulingAgent) Category() engine.Category { return engine.CategoryScheduling }

// Execute dispatches on the requested action.
func (a *SchedulingAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "slippage":
		return a.slippage(ctx, scope)
	case "milestone_health":
		return a.milestoneHealth(ctx, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// slippage lists scoped tasks whose planned end date has passed without
// completion.
func (a *SchedulingAgent) slippage(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindTask, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read tasks", err)
	}

	now := a.now().UTC()
	late := []map[string]any{}
	parsed := 0
	for _, rec := range recs {
		payload := decodePayload(rec)
		if strings.EqualFold(payloadString(payload, "status"), "done") {
			parsed++
			continue
		}
		plannedEnd, ok := payloadTime(payload, "planned_end")
		if !ok {
			continue
		}
		parsed++
		if plannedEnd.Before(now) {
			late = append(late, map[string]any{
				"task_id":      rec.ID,
				"name":         payloadString(payload, "name"),
				"days_overdue": int(now.Sub(plannedEnd).Hours() / 24),
			})
		}
	}

	confidence := Confidence(
		Signal{Name: "date_coverage", Value: ratio(parsed, len(recs)), Weight: 2},
		Signal{Name: "sample", Value: float64(len(recs)) / 10},
	)

	output := map[string]any{
		"total_tasks": len(recs),
		"late_tasks":  late,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: len(late) > 3 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// milestoneHealth grades milestones as on-track, at-risk, or missed.
func (a *SchedulingAgent) milestoneHealth(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindMilestone, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read milestones", err)
	}

	now := a.now().UTC()
	counts := map[string]int{"on_track": 0, "at_risk": 0, "missed": 0}
	for _, rec := range recs {
		payload := decodePayload(rec)
		due, ok := payloadTime(payload, "due")
		if !ok {
			continue
		}
		done := strings.EqualFold(payloadString(payload, "status"), "done")
		switch {
		case done:
			counts["on_track"]++
		case due.Before(now):
			counts["missed"]++
		case due.Before(now.Add(7 * 24 * time.Hour)):
			counts["at_risk"]++
		default:
			counts["on_track"]++
		}
	}

	confidence := Confidence(
		Signal{Name: "sample_size", Value: float64(len(recs)) / 5, Weight: 2},
		Signal{Name: "model", Value: 0.85},
	)

	output := map[string]any{
		"total_milestones": len(recs),
		"health":           counts,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: counts["missed"] > 0 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// payloadTime parses an RFC 3339 or date-only payload field.
func payloadTime(payload map[string]any, key string) (time.Time, bool) {
	raw := payloadString(payload, key)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
