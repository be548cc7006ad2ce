package agents

import (
	"context"
	"testing"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

func resourceFixture(t *testing.T) *fakeRecords {
	t.Helper()
	return &fakeRecords{records: []*stores.DomainRecord{
		record(t, "r-1", stores.RecordKindResource, "org-1", "", map[string]any{
			"name": "crane", "allocated": 80, "capacity": 100,
		}),
		record(t, "r-2", stores.RecordKindResource, "org-1", "", map[string]any{
			"name": "crew-a", "allocated": 120, "capacity": 100,
		}),
		record(t, "r-3", stores.RecordKindResource, "org-1", "", map[string]any{
			"name": "unsized",
		}),
		record(t, "r-4", stores.RecordKindResource, "org-2", "", map[string]any{
			"name": "other-org", "allocated": 10, "capacity": 10,
		}),
	}}
}

func TestResourceUtilization(t *testing.T) {
	agent := NewResourceAgent(resourceFixture(t), testHelper("Resource Planner"))

	result, err := agent.Execute(context.Background(),
		map[string]any{"action": "utilization"},
		engine.Scope{"organization_id": "org-1"})
	if err != nil {
		t.Fatalf("utilization failed: %v", err)
	}

	if count := result.Output["resource_count"]; count != 3 {
		t.Errorf("expected 3 scoped resources, got %v", count)
	}
	// r-3 has no capacity figures, so only two resources are measured.
	if measured := result.Output["measured"]; measured != 2 {
		t.Errorf("expected 2 measured resources, got %v", measured)
	}
	if avg := result.Output["average_utilization"]; avg != 1.0 {
		t.Errorf("expected average utilization 1.0, got %v", avg)
	}
	if result.RequiresReview {
		t.Error("good coverage must not require review")
	}
}

func TestResourceOverallocation(t *testing.T) {
	agent := NewResourceAgent(resourceFixture(t), testHelper("Resource Planner"))

	result, err := agent.Execute(context.Background(),
		map[string]any{"action": "overallocation"},
		engine.Scope{"organization_id": "org-1"})
	if err != nil {
		t.Fatalf("overallocation failed: %v", err)
	}

	overloaded, ok := result.Output["overallocated"].([]map[string]any)
	if !ok {
		t.Fatalf("expected overallocated list, got %T", result.Output["overallocated"])
	}
	if len(overloaded) != 1 {
		t.Fatalf("expected exactly r-2 overallocated, got %d entries", len(overloaded))
	}
	if overloaded[0]["resource_id"] != "r-2" {
		t.Errorf("expected r-2 flagged, got %v", overloaded[0]["resource_id"])
	}
	if overloaded[0]["ratio"] != 1.2 {
		t.Errorf("expected ratio 1.2, got %v", overloaded[0]["ratio"])
	}
	if !result.RequiresReview {
		t.Error("an overallocated resource must force review")
	}
}

func TestResourceOverallocationClean(t *testing.T) {
	records := &fakeRecords{records: []*stores.DomainRecord{
		record(t, "r-1", stores.RecordKindResource, "org-1", "", map[string]any{
			"name": "crane", "allocated": 80, "capacity": 100,
		}),
		record(t, "r-3", stores.RecordKindResource, "org-1", "", map[string]any{
			"name": "unsized",
		}),
	}}
	agent := NewResourceAgent(records, testHelper("Resource Planner"))

	result, err := agent.Execute(context.Background(),
		map[string]any{"action": "overallocation"},
		engine.Scope{"organization_id": "org-1"})
	if err != nil {
		t.Fatalf("overallocation failed: %v", err)
	}

	if overloaded := result.Output["overallocated"].([]map[string]any); len(overloaded) != 0 {
		t.Errorf("expected no overallocated resources, got %v", overloaded)
	}
	if result.RequiresReview {
		t.Error("clean allocation must not require review")
	}
}

func TestResourceUnknownAction(t *testing.T) {
	agent := NewResourceAgent(resourceFixture(t), testHelper("Resource Planner"))

	_, err := agent.Execute(context.Background(),
		map[string]any{"action": "conjure"}, engine.Scope{})
	if err == nil || !engine.IsValidation(err) {
		t.Errorf("unknown action must be a validation error, got %v", err)
	}
}
