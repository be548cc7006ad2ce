package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

func communicationFixture(t *testing.T) *fakeRecords {
	t.Helper()
	return &fakeRecords{records: []*stores.DomainRecord{
		record(t, "m-1", stores.RecordKindMessage, "org-1", "", map[string]any{
			"author": "alice", "status": "open",
		}),
		record(t, "m-2", stores.RecordKindMessage, "org-1", "", map[string]any{
			"author": "bob", "status": "resolved",
		}),
		record(t, "m-3", stores.RecordKindMessage, "org-1", "", map[string]any{
			"author": "alice", "status": "Open",
		}),
		record(t, "m-4", stores.RecordKindMessage, "org-2", "", map[string]any{
			"author": "mallory", "status": "open",
		}),
	}}
}

func TestCommunicationSummarize(t *testing.T) {
	agent := NewCommunicationAgent(communicationFixture(t), testHelper("Communication Assistant"))

	result, err := agent.Execute(context.Background(),
		map[string]any{"action": "summarize"},
		engine.Scope{"organization_id": "org-1"})
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}

	if total := result.Output["total_messages"]; total != 3 {
		t.Errorf("expected 3 scoped messages, got %v", total)
	}
	byAuthor, ok := result.Output["by_author"].(map[string]int)
	if !ok {
		t.Fatalf("expected author counts, got %T", result.Output["by_author"])
	}
	if byAuthor["alice"] != 2 || byAuthor["bob"] != 1 {
		t.Errorf("unexpected author counts: %v", byAuthor)
	}
	// Status matching is case-insensitive, so both open threads count.
	if unresolved := result.Output["unresolved"]; unresolved != 2 {
		t.Errorf("expected 2 unresolved threads, got %v", unresolved)
	}
	// Three messages is a thin sample, so confidence gating kicks in.
	if !result.RequiresReview {
		t.Error("a thin sample must require review")
	}
}

func TestCommunicationDraftNotice(t *testing.T) {
	agent := NewCommunicationAgent(communicationFixture(t), testHelper("Communication Assistant"))

	result, err := agent.Execute(context.Background(),
		map[string]any{
			"action":   "draft_notice",
			"subject":  "Crane Outage",
			"audience": "site team",
			"body":     "Crane 2 is down until Friday.",
		}, engine.Scope{})
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}

	draft, ok := result.Output["draft"].(string)
	if !ok {
		t.Fatalf("expected draft text, got %T", result.Output["draft"])
	}
	if !strings.Contains(draft, "NOTICE: Crane Outage") || !strings.Contains(draft, "To: site team") {
		t.Errorf("draft missing header lines: %q", draft)
	}
	if !strings.Contains(draft, "Crane 2 is down") {
		t.Errorf("draft missing body: %q", draft)
	}
	if result.RequiresReview {
		t.Error("an internal notice with a body must not require review")
	}
}

func TestCommunicationDraftNoticeExternal(t *testing.T) {
	agent := NewCommunicationAgent(communicationFixture(t), testHelper("Communication Assistant"))

	result, err := agent.Execute(context.Background(),
		map[string]any{
			"action":   "draft_notice",
			"subject":  "Schedule Change",
			"audience": "external",
			"body":     "Deliveries shift to gate B.",
		}, engine.Scope{})
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if !result.RequiresReview {
		t.Error("external notices must always require review")
	}

	result, err = agent.Execute(context.Background(),
		map[string]any{
			"action":   "draft_notice",
			"subject":  "Schedule Change",
			"audience": "Client Group",
			"body":     "Deliveries shift to gate B.",
		}, engine.Scope{})
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if !result.RequiresReview {
		t.Error("client-facing notices must always require review")
	}
}

func TestCommunicationDraftNoticeValidation(t *testing.T) {
	agent := NewCommunicationAgent(communicationFixture(t), testHelper("Communication Assistant"))

	_, err := agent.Execute(context.Background(),
		map[string]any{"action": "draft_notice", "subject": "Missing audience"},
		engine.Scope{})
	if err == nil || !engine.IsValidation(err) {
		t.Errorf("missing audience must be a validation error, got %v", err)
	}
}

func TestCommunicationUnknownAction(t *testing.T) {
	agent := NewCommunicationAgent(communicationFixture(t), testHelper("Communication Assistant"))

	_, err := agent.Execute(context.Background(),
		map[string]any{"action": "broadcast"}, engine.Scope{})
	if err == nil || !engine.IsValidation(err) {
		t.Errorf("unknown action must be a validation error, got %v", err)
	}
}
