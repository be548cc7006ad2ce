// Package agents implements the concrete analysis handlers behind the
// dispatch engine, one per task category: procurement, compliance, safety,
// resource, document, decision, communication, due diligence, and scheduling.
//
// Every agent composes the shared Helper for its common obligations: fail-fast
// required-input validation, weighted confidence scoring, token estimation,
// and a tagged structured logger. Agents read scoped domain data through the
// narrow RecordSource interface injected at construction.
//
// The heuristics here are deterministic and intentionally simple; the
// load-bearing contract is the shape of the result and the review-gating
// convention. An agent sets RequiresReview when its confidence falls below
// the configured policy threshold or its findings cross a severity line; the
// dispatcher, not the agent, maps that flag onto the requires_review terminal
// status.
package agents
