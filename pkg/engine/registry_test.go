package engine

import (
	"context"
	"testing"
)

type stubHandler struct {
	name string
	cat  Category
}

func (h *stubHandler) Name() string       { return h.name }
func (h *stubHandler) Category() Category { return h.cat }
func (h *stubHandler) Execute(context.Context, map[string]any, Scope) (*HandlerResult, error) {
	return &HandlerResult{Output: map[string]any{}}, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()

	h := &stubHandler{name: "Stub", cat: CategoryProcurement}
	if err := reg.Register(h); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, ok := reg.Lookup(CategoryProcurement)
	if !ok {
		t.Fatal("expected handler for procurement")
	}
	if got.Name() != "Stub" {
		t.Errorf("expected handler Stub, got %s", got.Name())
	}

	if _, ok := reg.Lookup(CategoryDecision); ok {
		t.Error("expected no handler for decision")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&stubHandler{name: "First", cat: CategorySafety}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := reg.Register(&stubHandler{name: "Second", cat: CategorySafety})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}

	// The original registration survives.
	h, ok := reg.Lookup(CategorySafety)
	if !ok || h.Name() != "First" {
		t.Errorf("expected original handler to remain, got %v", h)
	}
}

func TestRegistryRejectsNilAndUncategorized(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(nil); err == nil {
		t.Error("expected nil handler to be rejected")
	}
	if err := reg.Register(&stubHandler{name: "NoCat"}); err == nil {
		t.Error("expected handler without category to be rejected")
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d handlers", reg.Len())
	}
}

func TestRegistryCategoriesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, cat := range []Category{CategorySafety, CategoryCompliance, CategoryDecision} {
		if err := reg.Register(&stubHandler{name: string(cat), cat: cat}); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	cats := reg.Categories()
	want := []Category{CategoryCompliance, CategoryDecision, CategorySafety}
	if len(cats) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(cats))
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], cats[i])
		}
	}
}
