package agents

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentry/agentry/pkg/stores"
)

// fakeRecords is an in-memory RecordSource for agent tests.
type fakeRecords struct {
	records []*stores.DomainRecord
	err     error
}

func (f *fakeRecords) ListRecords(_ context.Context, filter stores.RecordFilter) ([]*stores.DomainRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*stores.DomainRecord
	for _, rec := range f.records {
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.OrganizationID != "" && rec.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.ProjectID != "" && (rec.ProjectID == nil || *rec.ProjectID != filter.ProjectID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecords) CountRecords(ctx context.Context, filter stores.RecordFilter) (int, error) {
	recs, err := f.ListRecords(ctx, filter)
	return len(recs), err
}

// record builds a domain record with a JSON payload for tests.
func record(t *testing.T, id string, kind stores.RecordKind, org string, severity string, payload map[string]any) *stores.DomainRecord {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	rec := &stores.DomainRecord{
		ID:             id,
		Kind:           kind,
		OrganizationID: org,
		Payload:        string(raw),
	}
	if severity != "" {
		rec.Severity = &severity
	}
	return rec
}

func testHelper(name string) Helper {
	return NewHelper(name, zerolog.Nop(), DefaultReviewPolicy())
}

func TestRequire(t *testing.T) {
	h := testHelper("Test Agent")

	if err := h.Require(map[string]any{"action": "x", "id": "1"}, "action", "id"); err != nil {
		t.Errorf("expected no error for complete input, got %v", err)
	}

	err := h.Require(map[string]any{"action": "x"}, "action", "supplier_id", "period")
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	msg := err.Error()
	if !strings.Contains(msg, "supplier_id") || !strings.Contains(msg, "period") {
		t.Errorf("expected both missing keys in message, got %q", msg)
	}
	if strings.Contains(msg, "action") {
		t.Errorf("present key must not be reported missing: %q", msg)
	}
}

func TestConfidenceWeightedAverage(t *testing.T) {
	got := Confidence(
		Signal{Name: "a", Value: 1.0, Weight: 2},
		Signal{Name: "b", Value: 0.5},
	)
	want := (1.0*2 + 0.5) / 3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Confidence = %f, want %f", got, want)
	}
}

func TestConfidenceClamping(t *testing.T) {
	if got := Confidence(Signal{Value: 3.0}); got != 1.0 {
		t.Errorf("oversized value must clamp to 1, got %f", got)
	}
	if got := Confidence(Signal{Value: -0.5}); got != 0.0 {
		t.Errorf("negative value must clamp to 0, got %f", got)
	}
	if got := Confidence(); got != 0.0 {
		t.Errorf("no signals must score 0, got %f", got)
	}
	// Non-positive weights count as weight 1.
	got := Confidence(Signal{Value: 0.4, Weight: -2}, Signal{Value: 0.8})
	want := (0.4 + 0.8) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Confidence = %f, want %f", got, want)
	}
}

func TestEstimateTokensDeterministic(t *testing.T) {
	payload := map[string]any{"alerts": []string{"a", "b"}, "total": 2}

	first := EstimateTokens(payload)
	second := EstimateTokens(payload)
	if first != second {
		t.Errorf("token estimate must be deterministic: %d != %d", first, second)
	}
	if first < 1 {
		t.Errorf("token estimate must be at least 1, got %d", first)
	}
	if EstimateTokens(map[string]any{}) < 1 {
		t.Error("empty payload must still cost at least 1 token")
	}

	bigger := EstimateTokens(map[string]any{"text": string(make([]byte, 4096))})
	if bigger <= first {
		t.Errorf("larger payload must cost more tokens: %d <= %d", bigger, first)
	}
}

func TestReviewPolicy(t *testing.T) {
	h := testHelper("Test Agent")

	if !h.NeedsReview(0.4) {
		t.Error("confidence 0.4 must need review under the default policy")
	}
	if h.NeedsReview(0.7) {
		t.Error("confidence at the threshold must not need review")
	}
	if !h.IsCritical("critical") || !h.IsCritical("CRITICAL") {
		t.Error("critical severity must match case-insensitively")
	}
	if h.IsCritical("high") || h.IsCritical("") {
		t.Error("non-critical severities must not match")
	}

	strict := NewHelper("Strict", zerolog.Nop(), ReviewPolicy{MinConfidence: 0.95, CriticalSeverity: "sev1"})
	if !strict.NeedsReview(0.9) {
		t.Error("custom threshold must apply")
	}
	if !strict.IsCritical("sev1") || strict.IsCritical("critical") {
		t.Error("custom critical label must apply")
	}
}
