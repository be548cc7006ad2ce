package agents

import (
	"github.com/rs/zerolog"

	"github.com/agentry/agentry/pkg/engine"
)

// Deps bundles the dependencies injected into every agent at construction.
type Deps struct {
	// Records is the scoped domain data source.
	Records RecordSource

	// Logger is the base structured logger; each agent derives a tagged child.
	Logger zerolog.Logger

	// Policy holds the review-gating thresholds.
	Policy ReviewPolicy
}

// RegisterAll builds the full agent set and registers each under its
// category. This is the process's single registration point; the registry is
// read-only afterwards.
func RegisterAll(reg *engine.Registry, deps Deps) error {
	if deps.Policy == (ReviewPolicy{}) {
		deps.Policy = DefaultReviewPolicy()
	}

	helper := func(name string) Helper {
		return NewHelper(name, deps.Logger, deps.Policy)
	}

	handlers := []engine.Handler{
		NewProcurementAgent(deps.Records, helper("Procurement Analyst")),
		NewComplianceAgent(deps.Records, helper("Compliance Monitor")),
		NewSafetyAgent(deps.Records, helper("Safety Analyst")),
		NewResourceAgent(deps.Records, helper("Resource Planner")),
		NewDocumentAgent(deps.Records, helper("Document Analyst")),
		NewDecisionAgent(helper("Decision Support")),
		NewCommunicationAgent(deps.Records, helper("Communication Assistant")),
		NewDueDiligenceAgent(deps.Records, helper("Due Diligence Screener")),
		NewSchedulingAgent(deps.Records, helper("Schedule Analyst")),
	}

	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
