package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentry/agentry/pkg/engine"
	"github.com/agentry/agentry/pkg/stores"
)

// DocumentAgent classifies documents and extracts lightweight metadata.
type DocumentAgent struct {
	helper  Helper
	records RecordSource
}

// NewDocumentAgent creates the document agent.
func NewDocumentAgent(records RecordSource, helper Helper) *DocumentAgent {
	return &DocumentAgent{helper: helper, records: records}
}

func (a *DocumentAgent) Name() string { return "Document Analyst" }

func (a *DocumentAgent) Category() engine.Category { return engine.CategoryDocument }

// classificationRules maps keywords to document classes, checked in order.
var classificationRules = []struct {
	class    string
	keywords []string
}{
	{"contract", []string{"contract", "agreement", "terms"}},
	{"invoice", []string{"invoice", "payment", "amount due"}},
	{"permit", []string{"permit", "license", "authorization"}},
	{"drawing", []string{"drawing", "blueprint", "plan view"}},
	{"report", []string{"report", "summary", "findings"}},
}

// Execute dispatches on the requested action.
func (a *DocumentAgent) Execute(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "classify":
		return a.classify(ctx, input, scope)
	case "extract_metadata":
		return a.extractMetadata(ctx, input, scope)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

func (a *DocumentAgent) lookup(ctx context.Context, input map[string]any, scope engine.Scope) (*stores.DomainRecord, map[string]any, error) {
	if err := a.helper.Require(input, "document_id"); err != nil {
		return nil, nil, err
	}
	documentID := stringInput(input, "document_id")

	recs, err := a.records.ListRecords(ctx, scopedFilter(stores.RecordKindDocument, scope))
	if err != nil {
		return nil, nil, engine.NewHandlerError("failed to read documents", err)
	}
	for _, rec := range recs {
		if rec.ID == documentID {
			return rec, decodePayload(rec), nil
		}
	}
	return nil, nil, engine.NewHandlerError(
		fmt.Sprintf("document not found: %s", documentID), nil)
}

// classify assigns a document class from title and content keywords.
func (a *DocumentAgent) classify(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	rec, payload, err := a.lookup(ctx, input, scope)
	if err != nil {
		return nil, err
	}

	text := strings.ToLower(payloadString(payload, "title") + " " + payloadString(payload, "content"))

	class := "other"
	matched := 0
	for _, rule := range classificationRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > matched {
			matched = hits
			class = rule.class
		}
	}

	confidence := Confidence(
		Signal{Name: "keyword_hits", Value: float64(matched) / 3, Weight: 2},
		Signal{Name: "text_present", Value: boolSignal(len(text) > 1)},
	)

	output := map[string]any{
		"document_id": rec.ID,
		"class":       class,
		"matches":     matched,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: class == "other" || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

// extractMetadata reports simple structural facts about a document.
func (a *DocumentAgent) extractMetadata(ctx context.Context, input map[string]any, scope engine.Scope) (*engine.HandlerResult, error) {
	rec, payload, err := a.lookup(ctx, input, scope)
	if err != nil {
		return nil, err
	}

	content := payloadString(payload, "content")
	words := 0
	if content != "" {
		words = len(strings.Fields(content))
	}

	known := []string{"title", "author", "version", "issued_at"}
	present := []string{}
	for _, field := range known {
		if payloadString(payload, field) != "" {
			present = append(present, field)
		}
	}

	confidence := Confidence(
		Signal{Name: "field_coverage", Value: ratio(len(present), len(known)), Weight: 2},
		Signal{Name: "content_present", Value: boolSignal(words > 0)},
	)

	output := map[string]any{
		"document_id": rec.ID,
		"word_count":  words,
		"fields":      present,
	}

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}

func boolSignal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
