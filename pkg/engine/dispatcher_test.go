package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// memStore is an in-memory AuditStore for dispatcher tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	order   []string

	failCreate bool
	failUpdate bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*ExecutionRecord)}
}

func (s *memStore) CreateExecution(_ context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("create rejected")
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *memStore) UpdateExecution(_ context.Context, id string, patch ExecutionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate {
		return errors.New("update rejected")
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("execution not found: %s", id)
	}
	rec.Status = patch.Status
	rec.Output = patch.Output
	rec.Confidence = patch.Confidence
	rec.Error = patch.Error
	rec.TokensUsed = patch.TokensUsed
	completed := patch.CompletedAt
	rec.CompletedAt = &completed
	ms := patch.ExecutionTimeMs
	rec.ExecutionTimeMs = &ms
	return nil
}

func (s *memStore) ListExecutions(_ context.Context, filter Filter) ([]*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ExecutionRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		rec := s.records[s.order[i]]
		if filter.Category != "" && rec.Category != filter.Category {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) get(id string) *ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeHandler executes a caller-supplied function.
type fakeHandler struct {
	name string
	cat  Category
	fn   func(ctx context.Context, input map[string]any, scope Scope) (*HandlerResult, error)
}

func (h *fakeHandler) Name() string       { return h.name }
func (h *fakeHandler) Category() Category { return h.cat }

func (h *fakeHandler) Execute(ctx context.Context, input map[string]any, scope Scope) (*HandlerResult, error) {
	return h.fn(ctx, input, scope)
}

func setupDispatcher(t *testing.T, handlers ...Handler) (*Dispatcher, *memStore) {
	t.Helper()
	reg := NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("failed to register handler: %v", err)
		}
	}
	store := newMemStore()
	return NewDispatcher(reg, store, Options{}), store
}

func okHandler(cat Category, result *HandlerResult) Handler {
	return &fakeHandler{
		name: "Test Agent",
		cat:  cat,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			return result, nil
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	d, store := setupDispatcher(t, okHandler(CategoryProcurement, &HandlerResult{
		Output:     map[string]any{"risk": "low"},
		Confidence: 0.9,
		TokensUsed: 12,
	}))

	outcome := d.Execute(context.Background(), Request{
		Category:    CategoryProcurement,
		Scope:       Scope{"organization_id": "org-1", "project_id": "proj-1", "request_ref": "r-42"},
		Input:       map[string]any{"action": "analyze_supplier"},
		RequestedBy: "alice",
	})

	if !outcome.Success {
		t.Fatalf("expected success, got error %q", outcome.Error)
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, outcome.Status)
	}
	if outcome.ExecutionID == "" {
		t.Error("expected execution id on outcome")
	}
	if outcome.Confidence == nil || *outcome.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", outcome.Confidence)
	}
	if outcome.TokensUsed == nil || *outcome.TokensUsed != 12 {
		t.Errorf("expected tokens 12, got %v", outcome.TokensUsed)
	}

	rec := store.get(outcome.ExecutionID)
	if rec == nil {
		t.Fatal("expected a persisted record")
	}
	if rec.Status != StatusCompleted {
		t.Errorf("expected record status %s, got %s", StatusCompleted, rec.Status)
	}
	if rec.Output == nil || rec.Error != nil {
		t.Errorf("completed record must have output and no error, got output=%v error=%v", rec.Output, rec.Error)
	}
	if rec.CompletedAt == nil || rec.ExecutionTimeMs == nil {
		t.Error("finalized record must have completion time and duration")
	}
	if rec.OrganizationID == nil || *rec.OrganizationID != "org-1" {
		t.Errorf("expected organization org-1, got %v", rec.OrganizationID)
	}
	if rec.ProjectID == nil || *rec.ProjectID != "proj-1" {
		t.Errorf("expected project proj-1, got %v", rec.ProjectID)
	}
	if rec.Correlation == nil || !strings.Contains(*rec.Correlation, "request_ref") {
		t.Errorf("expected correlation blob with request_ref, got %v", rec.Correlation)
	}
	if rec.RequestedBy == nil || *rec.RequestedBy != "alice" {
		t.Errorf("expected requested_by alice, got %v", rec.RequestedBy)
	}
}

func TestExecuteRequiresReview(t *testing.T) {
	d, store := setupDispatcher(t, okHandler(CategoryCompliance, &HandlerResult{
		Output:         map[string]any{"alerts": []any{"expired"}},
		Confidence:     0.4,
		RequiresReview: true,
	}))

	outcome := d.Execute(context.Background(), Request{Category: CategoryCompliance})

	if !outcome.Success {
		t.Fatalf("review-flagged run must still succeed, got error %q", outcome.Error)
	}
	if outcome.Status != StatusRequiresReview {
		t.Errorf("expected status %s, got %s", StatusRequiresReview, outcome.Status)
	}
	if !outcome.RequiresReview {
		t.Error("expected requires_review on outcome")
	}
	rec := store.get(outcome.ExecutionID)
	if rec.Status != StatusRequiresReview {
		t.Errorf("expected record status %s, got %s", StatusRequiresReview, rec.Status)
	}
	if rec.Output == nil || rec.Confidence == nil {
		t.Error("review record must keep output and confidence")
	}
}

func TestExecuteHandlerError(t *testing.T) {
	d, store := setupDispatcher(t, &fakeHandler{
		name: "Failing Agent",
		cat:  CategorySafety,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			return nil, NewValidationError("missing required input: incident_id", nil)
		},
	})

	outcome := d.Execute(context.Background(), Request{Category: CategorySafety})

	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if outcome.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, outcome.Status)
	}
	if !strings.Contains(outcome.Error, "incident_id") {
		t.Errorf("expected handler error message, got %q", outcome.Error)
	}

	rec := store.get(outcome.ExecutionID)
	if rec.Status != StatusFailed {
		t.Errorf("expected record status %s, got %s", StatusFailed, rec.Status)
	}
	if rec.Error == nil || rec.Output != nil {
		t.Errorf("failed record must have error and no output, got error=%v output=%v", rec.Error, rec.Output)
	}
}

func TestExecutePanicRecovery(t *testing.T) {
	d, store := setupDispatcher(t, &fakeHandler{
		name: "Panicking Agent",
		cat:  CategoryResource,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			panic("nil map write")
		},
	})

	outcome := d.Execute(context.Background(), Request{Category: CategoryResource})

	if outcome.Success {
		t.Fatal("expected failure outcome after panic")
	}
	if !strings.Contains(outcome.Error, "panic") {
		t.Errorf("expected panic message in error, got %q", outcome.Error)
	}
	rec := store.get(outcome.ExecutionID)
	if rec == nil || rec.Status != StatusFailed {
		t.Fatalf("panic must finalize the record as failed, got %+v", rec)
	}
}

func TestExecuteNilResult(t *testing.T) {
	d, _ := setupDispatcher(t, &fakeHandler{
		name: "Empty Agent",
		cat:  CategoryDocument,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			return nil, nil
		},
	})

	outcome := d.Execute(context.Background(), Request{Category: CategoryDocument})
	if outcome.Success {
		t.Fatal("nil result without error must fail")
	}
	if !strings.Contains(outcome.Error, "no result") {
		t.Errorf("unexpected error message: %q", outcome.Error)
	}
}

func TestExecuteUnknownCategory(t *testing.T) {
	d, store := setupDispatcher(t)

	outcome := d.Execute(context.Background(), Request{Category: Category("astrology")})

	if outcome.Success {
		t.Fatal("expected rejection for unknown category")
	}
	if outcome.ExecutionID != "" {
		t.Error("rejected request must not have an execution id")
	}
	if store.count() != 0 {
		t.Errorf("rejected request must not create records, found %d", store.count())
	}
	if !strings.Contains(outcome.Error, "no handler registered") {
		t.Errorf("unexpected error message: %q", outcome.Error)
	}
}

func TestExecuteMissingCategory(t *testing.T) {
	d, store := setupDispatcher(t)

	outcome := d.Execute(context.Background(), Request{})

	if outcome.Success {
		t.Fatal("expected rejection for missing category")
	}
	if store.count() != 0 {
		t.Errorf("invalid request must not create records, found %d", store.count())
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	d, store := setupDispatcher(t, &fakeHandler{
		name: "Blocking Agent",
		cat:  CategoryScheduling,
		fn: func(ctx context.Context, _ map[string]any, _ Scope) (*HandlerResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	outcome := d.Execute(ctx, Request{Category: CategoryScheduling})

	if outcome.Success {
		t.Fatal("cancelled execution must fail")
	}
	if !strings.Contains(outcome.Error, "cancelled") {
		t.Errorf("expected cancellation message, got %q", outcome.Error)
	}

	// The finalization write must land despite the cancelled caller context.
	rec := store.get(outcome.ExecutionID)
	if rec == nil {
		t.Fatal("expected a persisted record")
	}
	if rec.Status != StatusFailed {
		t.Errorf("cancelled record must be failed, got %s", rec.Status)
	}
	if rec.CompletedAt == nil {
		t.Error("cancelled record must still be finalized")
	}
}

func TestExecuteTimeout(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&fakeHandler{
		name: "Slow Agent",
		cat:  CategoryDecision,
		fn: func(ctx context.Context, _ map[string]any, _ Scope) (*HandlerResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &HandlerResult{Output: map[string]any{}}, nil
			}
		},
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	store := newMemStore()
	d := NewDispatcher(reg, store, Options{Timeout: 20 * time.Millisecond})

	outcome := d.Execute(context.Background(), Request{Category: CategoryDecision})
	if outcome.Success {
		t.Fatal("timed-out execution must fail")
	}
	if !strings.Contains(outcome.Error, "cancelled") {
		t.Errorf("expected cancellation message, got %q", outcome.Error)
	}

	rec := store.get(outcome.ExecutionID)
	if rec == nil || rec.Status != StatusFailed {
		t.Fatalf("timed-out record must be finalized as failed, got %+v", rec)
	}
}

func TestExecuteStoreCreateFailure(t *testing.T) {
	d, store := setupDispatcher(t, okHandler(CategoryProcurement, &HandlerResult{Output: map[string]any{}}))
	store.failCreate = true

	outcome := d.Execute(context.Background(), Request{Category: CategoryProcurement})

	if outcome.Success {
		t.Fatal("expected rejection when the record cannot be created")
	}
	if !strings.Contains(outcome.Error, "failed to create execution record") {
		t.Errorf("unexpected error message: %q", outcome.Error)
	}
}

func TestExecuteStoreUpdateFailure(t *testing.T) {
	d, store := setupDispatcher(t, okHandler(CategoryProcurement, &HandlerResult{
		Output:     map[string]any{"risk": "low"},
		Confidence: 0.9,
	}))
	store.failUpdate = true

	outcome := d.Execute(context.Background(), Request{Category: CategoryProcurement})

	if outcome.Success {
		t.Fatal("a lost finalization write must not be reported as success")
	}
	if outcome.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, outcome.Status)
	}
}

func TestExecuteManyIsolation(t *testing.T) {
	faulty := &fakeHandler{
		name: "Faulty Agent",
		cat:  CategorySafety,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			return nil, errors.New("boom")
		},
	}
	echo := &fakeHandler{
		name: "Echo Agent",
		cat:  CategoryCommunication,
		fn: func(_ context.Context, input map[string]any, _ Scope) (*HandlerResult, error) {
			return &HandlerResult{Output: map[string]any{"echo": input["n"]}, Confidence: 1}, nil
		},
	}

	d, store := setupDispatcher(t, faulty, echo)

	reqs := []Request{
		{Category: CategoryCommunication, Input: map[string]any{"n": "0"}},
		{Category: CategoryCommunication, Input: map[string]any{"n": "1"}},
		{Category: CategorySafety},
		{Category: CategoryCommunication, Input: map[string]any{"n": "3"}},
		{Category: CategoryCommunication, Input: map[string]any{"n": "4"}},
	}

	outcomes := d.ExecuteMany(context.Background(), reqs)

	if len(outcomes) != len(reqs) {
		t.Fatalf("expected %d outcomes, got %d", len(reqs), len(outcomes))
	}
	for i, n := range []string{"0", "1", "", "3", "4"} {
		if i == 2 {
			if outcomes[i].Success {
				t.Error("faulty member must fail")
			}
			continue
		}
		if !outcomes[i].Success {
			t.Errorf("member %d must succeed despite the faulty member, got %q", i, outcomes[i].Error)
			continue
		}
		if got := outcomes[i].Output["echo"]; got != n {
			t.Errorf("outcome %d out of order: expected echo %q, got %v", i, n, got)
		}
	}

	// Every member, including the failed one, leaves a finalized record.
	if store.count() != len(reqs) {
		t.Errorf("expected %d records, got %d", len(reqs), store.count())
	}
	for _, rec := range store.records {
		if !rec.Status.IsTerminal() {
			t.Errorf("record %s left non-terminal: %s", rec.ID, rec.Status)
		}
	}
}

func TestExecuteManyBounded(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	h := &fakeHandler{
		name: "Counting Agent",
		cat:  CategoryResource,
		fn: func(context.Context, map[string]any, Scope) (*HandlerResult, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return &HandlerResult{Output: map[string]any{}}, nil
		},
	}

	reg := NewRegistry()
	if err := reg.Register(h); err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}
	d := NewDispatcher(reg, newMemStore(), Options{MaxParallel: 2})

	reqs := make([]Request, 8)
	for i := range reqs {
		reqs[i] = Request{Category: CategoryResource}
	}
	d.ExecuteMany(context.Background(), reqs)

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent executions, saw %d", peak)
	}
}

func TestExecuteManyBatchSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	reg := NewRegistry()
	if err := reg.Register(okHandler(CategorySafety, &HandlerResult{Output: map[string]any{}})); err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}
	d := NewDispatcher(reg, newMemStore(), Options{Tracer: provider.Tracer("test")})

	d.ExecuteMany(context.Background(), []Request{
		{Category: CategorySafety},
		{Category: CategorySafety},
	})

	var batch sdktrace.ReadOnlySpan
	var executes []sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		switch s.Name() {
		case "dispatch.execute_many":
			batch = s
		case "dispatch.execute":
			executes = append(executes, s)
		}
	}

	if batch == nil {
		t.Fatal("expected a batch span from ExecuteMany")
	}
	sizeFound := false
	for _, attr := range batch.Attributes() {
		if string(attr.Key) == "dispatch.batch_size" && attr.Value.AsInt64() == 2 {
			sizeFound = true
		}
	}
	if !sizeFound {
		t.Error("expected batch_size attribute on the batch span")
	}

	if len(executes) != 2 {
		t.Fatalf("expected 2 dispatch spans, got %d", len(executes))
	}
	for _, s := range executes {
		if s.Parent().SpanID() != batch.SpanContext().SpanID() {
			t.Error("dispatch span must be a child of the batch span")
		}
	}
}

func TestExecuteManyEmpty(t *testing.T) {
	d, _ := setupDispatcher(t)
	outcomes := d.ExecuteMany(context.Background(), nil)
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
}

func TestHistoryLimits(t *testing.T) {
	d, store := setupDispatcher(t, okHandler(CategoryProcurement, &HandlerResult{Output: map[string]any{}}))

	for i := 0; i < 3; i++ {
		if out := d.Execute(context.Background(), Request{Category: CategoryProcurement}); !out.Success {
			t.Fatalf("setup dispatch failed: %s", out.Error)
		}
	}

	recs, err := d.History(context.Background(), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records, got %d", len(recs))
	}

	// Unset and oversized limits are normalized before hitting the store.
	if _, err := d.History(context.Background(), Filter{}); err != nil {
		t.Fatalf("history with default limit failed: %v", err)
	}
	if _, err := d.History(context.Background(), Filter{Limit: 10_000}); err != nil {
		t.Fatalf("history with oversized limit failed: %v", err)
	}
	_ = store
}

func TestHistoryConfiguredDefaultLimit(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(okHandler(CategoryProcurement, &HandlerResult{Output: map[string]any{}})); err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}
	store := newMemStore()
	d := NewDispatcher(reg, store, Options{HistoryLimit: 2})

	for i := 0; i < 4; i++ {
		if out := d.Execute(context.Background(), Request{Category: CategoryProcurement}); !out.Success {
			t.Fatalf("setup dispatch failed: %s", out.Error)
		}
	}

	recs, err := d.History(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected the configured default limit of 2, got %d records", len(recs))
	}

	// An explicit filter limit still wins over the configured default.
	recs, err = d.History(context.Background(), Filter{Limit: 3})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 records for an explicit limit, got %d", len(recs))
	}
}
