package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// ProcurementAgent analyzes suppliers, bids, and tender risk.
type ProcurementAgent struct {
	helper  Helper
	records RecordSource
}

// NewProcurementAgent creates the procurement agent.
func NewProcurementAgent(records RecordSource, helper Helper) *ProcurementAgent {
	return &ProcurementAgent{helper: helper, records: records}
}

// Name returns the handler display name.
func (a *ProcurementAgent) Name() string { return "Procurement Analyst" }

// Category returns the handled task category.
func (a *ProcurementAgent) Category() engine.Category { return engine.CategoryProcurement }

// Execute dispatches on the requested action.
func (a *ProcurementAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "analyze_supplier":
		return a.analyzeSupplier(ctx, input, scope)
	case "compare_bids":
		return a.compareBids(ctx, scope)
	case "tender_risk":
		return a.tenderRisk(ctx, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// analyzeSupplier scores a single supplier on delivery and quality history.
func (a *ProcurementAgent) analyzeSupplier(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "supplier_id"); err != nil {
		return nil, err
	}
	supplierID := stringInput(input, "supplier_id")

	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindSupplier, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read suppliers", err)
	}

	var payload map[string]any
	for _, rec := range recs {
		if rec.ID == supplierID {
			payload = decodePayload(rec)
			break
		}
	}
	if payload == nil {
		return nil, engine.NewHandlerError(
			fmt.Sprintf("supplier not found: %s", supplierID), nil)
	}

	onTime, hasOnTime := payloadNumber(payload, "on_time_rate")
	quality, hasQuality := payloadNumber(payload, "quality_score")
	disputes, _ := payloadNumber(payload, "open_disputes")

	score := Confidence(
		Signal{Name: "on_time", Value: onTime, Weight: 2},
		Signal{Name: "quality", Value: quality, Weight: 2},
		Signal{Name: "disputes", Value: 1 - disputes/10},
	)

	completeness := 0.5
	if hasOnTime && hasQuality {
		completeness = 1.0
	}
	confidence := Confidence(
		Signal{Name: "data_completeness", Value: completeness, Weight: 2},
		Signal{Name: "sample", Value: 0.9},
	)

	output := map[string]any{
		"supplier_id":   supplierID,
		"overall_score": round2(score),
		"risk_level":    riskLevel(1 - score),
		"open_disputes": disputes,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: a.helper.NeedsReview(confidence) || score < 0.4,
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// compareBids ranks all scoped bids by amount and evaluation score.
func (a *ProcurementAgent) compareBids(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindBid, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to read bids", err)
	}

	type ranked struct {
		ID     string  `json:"id"`
		Bidder string  `json:"bidder"`
		Amount float64 `json:"amount"`
		Score  float64 `json:"score"`
	}

	bids := make([]ranked, 0, len(recs))
	for _, rec := range recs {
		payload := decodePayload(rec)
		amount, _ := payloadNumber(payload, "amount")
		score, _ := payloadNumber(payload, "evaluation_score")
		bids = append(bids, ranked{
			ID:     rec.ID,
			Bidder: payloadString(payload, "bidder"),
			Amount: amount,
			Score:  score,
		})
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Score != bids[j].Score {
			return bids[i].Score > bids[j].Score
		}
		return bids[i].Amount < bids[j].Amount
	})

	confidence := Confidence(
		Signal{Name: "sample_size", Value: float64(len(bids)) / 3, Weight: 2},
		Signal{Name: "data_quality", Value: 0.85},
	)

	output := map[string]any{
		"total_bids": len(bids),
		"ranking":    bids,
	}
	if len(bids) > 0 {
		output["recommended"] = bids[0].ID
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// tenderRisk grades competition risk from the number of scoped bids.
func (a *ProcurementAgent) tenderRisk(ctx context.Context, scope engine.Scope) (*engine.HandlerResult, error) {
	total, err := a.records.CountRecords(ctx, scopedFilter(stores.RecordKindBid, scope))
	if err != nil {
		return nil, engine.NewHandlerError("failed to count bids", err)
	}

	// Fewer than three bids signals weak competition.
	risk := 0.2
	if total < 3 {
		risk = 0.6
	}
	if total == 0 {
		risk = 0.9
	}

	confidence := Confidence(
		Signal{Name: "signal_strength", Value: 0.8, Weight: 2},
		Signal{Name: "sample_size", Value: float64(total) / 5},
	)

	output := map[string]any{
		"bid_count":  total,
		"risk_score": risk,
		"risk_level": riskLevel(risk),
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: risk >= 0.6 || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// riskLevel maps a 0-1 risk score onto a coarse label.
func riskLevel(risk float64) string {
	switch {
	case risk >= 0.75:
		return "critical"
	case risk >= 0.5:
		return "high"
	case risk >= 0.25:
		return "medium"
	default:
		return "low"
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
