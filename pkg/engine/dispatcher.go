package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultHistoryLimit is applied when a history query does not set a limit.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps history queries regardless of the requested limit.
const MaxHistoryLimit = 500

// Observer receives dispatch lifecycle notifications for metrics collection.
type Observer interface {
	// DispatchStarted is called after the audit record is created.
	DispatchStarted(cat Category)

	// DispatchCompleted is called once the record reaches a terminal status.
	DispatchCompleted(cat Category, status Status, duration time.Duration, tokens int)

	// DispatchRejected is called for requests that never produced a record.
	DispatchRejected(cat Category, class ErrorClass)
}

// Options configures a Dispatcher.
type Options struct {
	// Logger is the structured logger; a disabled logger is used when unset.
	Logger zerolog.Logger

	// Observer receives metrics notifications. Optional.
	Observer Observer

	// Tracer creates per-dispatch spans. A no-op tracer is used when unset.
	Tracer trace.Tracer

	// MaxParallel caps ExecuteMany concurrency. Zero means unbounded.
	MaxParallel int

	// Timeout bounds each handler invocation. Zero means no timeout.
	Timeout time.Duration

	// HistoryLimit is the default page size for history queries. Zero means
	// DefaultHistoryLimit.
	HistoryLimit int
}

// Dispatcher turns execution requests into finalized audit records and
// caller-facing outcomes. It is safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	store    AuditStore
	log      zerolog.Logger
	observer Observer
	tracer   trace.Tracer
	validate *validator.Validate

	maxParallel  int
	timeout      time.Duration
	historyLimit int
}

// NewDispatcher creates a dispatcher over the given registry and audit store.
func NewDispatcher(registry *Registry, store AuditStore, opts Options) *Dispatcher {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("agentry")
	}

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if historyLimit > MaxHistoryLimit {
		historyLimit = MaxHistoryLimit
	}

	return &Dispatcher{
		registry:     registry,
		store:        store,
		log:          opts.Logger,
		observer:     opts.Observer,
		tracer:       tracer,
		validate:     validator.New(),
		maxParallel:  opts.MaxParallel,
		timeout:      opts.Timeout,
		historyLimit: historyLimit,
	}
}

// Execute runs a single request through its handler and records the full
// lifecycle in the audit store. Handler faults of any kind, including panics
// and cancellation, are converted into a failed record plus a failure outcome;
// they are never propagated to the caller as errors.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Outcome {
	ctx, span := d.tracer.Start(ctx, "dispatch.execute",
		trace.WithAttributes(attribute.String("dispatch.category", string(req.Category))))
	defer span.End()

	if err := d.validate.Struct(req); err != nil {
		return d.reject(span, req.Category,
			NewConfigurationError("invalid request", err).WithCategory(req.Category))
	}

	handler, ok := d.registry.Lookup(req.Category)
	if !ok {
		return d.reject(span, req.Category, NewConfigurationError(
			fmt.Sprintf("no handler registered for category %q", req.Category), nil,
		).WithCategory(req.Category))
	}

	rec, err := d.createRecord(ctx, req, handler)
	if err != nil {
		return d.reject(span, req.Category,
			NewStorageError("failed to create execution record", err).
				WithCategory(req.Category).WithHandler(handler.Name()))
	}

	span.SetAttributes(attribute.String("dispatch.execution_id", rec.ID))
	log := d.log.With().
		Str("execution_id", rec.ID).
		Str("category", string(req.Category)).
		Str("agent", handler.Name()).
		Logger()
	log.Debug().Msg("execution record created")

	if d.observer != nil {
		d.observer.DispatchStarted(req.Category)
	}

	started := time.Now()
	result, herr := d.invokeHandler(ctx, handler, req)
	elapsed := time.Since(started)

	outcome := d.finalize(ctx, rec, result, herr, elapsed)

	if outcome.Success {
		span.SetStatus(codes.Ok, "")
		log.Info().
			Str("status", string(outcome.Status)).
			Int64("execution_time_ms", outcome.ExecutionTimeMs).
			Msg("dispatch completed")
	} else {
		span.RecordError(herr)
		span.SetStatus(codes.Error, outcome.Error)
		log.Warn().
			Str("status", string(outcome.Status)).
			Str("error", outcome.Error).
			Int64("execution_time_ms", outcome.ExecutionTimeMs).
			Msg("dispatch failed")
	}

	if d.observer != nil {
		tokens := 0
		if outcome.TokensUsed != nil {
			tokens = *outcome.TokensUsed
		}
		d.observer.DispatchCompleted(req.Category, outcome.Status, elapsed, tokens)
	}

	return outcome
}

// ExecuteMany runs all requests concurrently and returns their outcomes in
// input order. One member's failure never cancels or corrupts another's.
func (d *Dispatcher) ExecuteMany(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return outcomes
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.execute_many",
		trace.WithAttributes(attribute.Int("dispatch.batch_size", len(reqs))))
	defer span.End()

	var sem chan struct{}
	if d.maxParallel > 0 {
		sem = make(chan struct{}, d.maxParallel)
	}

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			outcomes[i] = d.Execute(ctx, req)
		}(i, req)
	}
	wg.Wait()

	return outcomes
}

// History queries the audit store for past executions, newest first.
func (d *Dispatcher) History(ctx context.Context, filter Filter) ([]*ExecutionRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = d.historyLimit
	}
	if filter.Limit > MaxHistoryLimit {
		filter.Limit = MaxHistoryLimit
	}

	recs, err := d.store.ListExecutions(ctx, filter)
	if err != nil {
		return nil, NewStorageError("failed to query execution history", err)
	}
	return recs, nil
}

// createRecord persists the running record before the handler is invoked.
func (d *Dispatcher) createRecord(ctx context.Context, req Request, handler Handler) (*ExecutionRecord, error) {
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}

	rec := &ExecutionRecord{
		ID:          uuid.New().String(),
		Category:    req.Category,
		HandlerName: handler.Name(),
		Status:      StatusRunning,
		Input:       string(inputJSON),
		StartedAt:   now,
		CreatedAt:   now,
	}

	if org := req.Scope.OrganizationID(); org != "" {
		rec.OrganizationID = &org
	}
	if proj := req.Scope.ProjectID(); proj != "" {
		rec.ProjectID = &proj
	}
	if corr := req.Scope.Correlation(); corr != nil {
		blob, err := json.Marshal(corr)
		if err != nil {
			return nil, fmt.Errorf("failed to encode correlation keys: %w", err)
		}
		s := string(blob)
		rec.Correlation = &s
	}
	if req.RequestedBy != "" {
		rb := req.RequestedBy
		rec.RequestedBy = &rb
	}

	if err := d.store.CreateExecution(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// invokeHandler runs the handler with panic recovery and the configured
// timeout. A recovered panic becomes a handler fault.
func (d *Dispatcher) invokeHandler(ctx context.Context, handler Handler, req Request) (result *HandlerResult, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewHandlerError(fmt.Sprintf("handler panic: %v", r), nil).
				WithCategory(req.Category).WithHandler(handler.Name())
		}
	}()

	result, err = handler.Execute(ctx, req.Input, req.Scope)
	if err == nil && result == nil {
		err = NewHandlerError("handler returned no result", nil).
			WithCategory(req.Category).WithHandler(handler.Name())
	}

	// Map context expiry onto the cancellation class so the audit record
	// distinguishes "caller gave up" from a handler defect.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = NewCancelledError("execution cancelled", err).
			WithCategory(req.Category).WithHandler(handler.Name())
	}
	if err == nil && ctx.Err() != nil {
		result = nil
		err = NewCancelledError("execution cancelled", ctx.Err()).
			WithCategory(req.Category).WithHandler(handler.Name())
	}

	return result, err
}

// finalize applies the single terminal write to the record and builds the
// outcome. It runs on every exit path once a record exists; the update uses a
// detached context so a cancelled caller cannot orphan a running record.
func (d *Dispatcher) finalize(ctx context.Context, rec *ExecutionRecord, result *HandlerResult, herr error, elapsed time.Duration) Outcome {
	completedAt := time.Now().UTC()
	elapsedMs := elapsed.Milliseconds()

	patch := ExecutionPatch{
		CompletedAt:     completedAt,
		ExecutionTimeMs: elapsedMs,
	}
	outcome := Outcome{
		ExecutionID:     rec.ID,
		ExecutionTimeMs: elapsedMs,
	}

	if herr != nil {
		msg := herr.Error()
		patch.Status = StatusFailed
		patch.Error = &msg
		outcome.Status = StatusFailed
		outcome.Error = msg
	} else {
		status := StatusCompleted
		if result.RequiresReview {
			status = StatusRequiresReview
		}
		patch.Status = status

		outputJSON, err := json.Marshal(result.Output)
		if err != nil {
			// Unserializable output is a handler defect; record it as one.
			msg := NewHandlerError("failed to encode handler output", err).Error()
			patch.Status = StatusFailed
			patch.Error = &msg
			outcome.Status = StatusFailed
			outcome.Error = msg
		} else {
			out := string(outputJSON)
			conf := result.Confidence
			tokens := result.TokensUsed
			patch.Output = &out
			patch.Confidence = &conf
			patch.TokensUsed = &tokens

			outcome.Success = true
			outcome.Status = status
			outcome.Output = result.Output
			outcome.Confidence = &conf
			outcome.RequiresReview = result.RequiresReview
			outcome.TokensUsed = &tokens
		}
	}

	// The finalization write must land even when the caller's context is
	// already cancelled; otherwise the record stays running forever.
	updateCtx := context.WithoutCancel(ctx)
	if err := d.store.UpdateExecution(updateCtx, rec.ID, patch); err != nil {
		d.log.Error().
			Err(err).
			Str("execution_id", rec.ID).
			Msg("failed to finalize execution record")
		if outcome.Success {
			outcome.Success = false
			outcome.Status = StatusFailed
			outcome.Error = NewStorageError("failed to finalize execution record", err).Error()
		}
	}

	return outcome
}

// reject builds the failure outcome for requests that never produced a record.
func (d *Dispatcher) reject(span trace.Span, cat Category, derr *DispatchError) Outcome {
	span.RecordError(derr)
	span.SetStatus(codes.Error, derr.Message)

	d.log.Warn().
		Str("category", string(cat)).
		Str("class", string(derr.Class)).
		Str("error", derr.Error()).
		Msg("dispatch rejected")

	if d.observer != nil {
		d.observer.DispatchRejected(cat, derr.Class)
	}

	return Outcome{
		Success: false,
		Error:   derr.Error(),
	}
}
