package agents

import (
	"context"
	"sort"

	"github.com/agentry/agentry/pkg/engine"
)

// DecisionAgent scores caller-supplied options against weighted criteria.
// Unlike the other agents it operates purely on its input payload.
type DecisionAgent struct {
	helper Helper
}

// NewDecisionAgent creates the decision agent.
func NewDecisionAgent(helper Helper) *DecisionAgent {
	return &DecisionAgent{helper: helper}
}

func (a *DecisionAgent) Name() string { return "Decision Support" }

func (a *DecisionAgent) Category() engine.Category { return engine.CategoryDecision }

// Execute dispatches on the requested action.
func (a *DecisionAgent) Execute(_ context.Context, input map[string]any, _ engine.Scope) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "action"); err != nil {
		return nil, err
	}

	action := stringInput(input, "action")
	switch action {
	case "recommend":
		return a.recommend(input)
	default:
		return nil, unknownAction(a.Name(), action)
	}
}

// recommend ranks options by the weighted sum of their criterion scores.
// Input shape: options is a list of {name, scores: {criterion: 0-1}};
// criteria is an optional {criterion: weight} map.
func (a *DecisionAgent) recommend(input map[string]any) (*engine.HandlerResult, error) {
	if err := a.helper.Require(input, "options"); err != nil {
		return nil, err
	}

	rawOptions, ok := input["options"].([]any)
	if !ok || len(rawOptions) == 0 {
		return nil, engine.NewValidationError("options must be a non-empty list", nil).
			WithHandler(a.Name())
	}

	weights := map[string]float64{}
	if crit, ok := input["criteria"].(map[string]any); ok {
		for name := range crit {
			if w, ok := payloadNumber(crit, name); ok && w > 0 {
				weights[name] = w
			}
		}
	}

	type scored struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}

	ranking := make([]scored, 0, len(rawOptions))
	incomplete := 0
	for _, raw := range rawOptions {
		option, ok := raw.(map[string]any)
		if !ok {
			incomplete++
			continue
		}
		name := payloadString(option, "name")

		scores, _ := option["scores"].(map[string]any)
		var sum, weight float64
		for criterion := range scores {
			v, ok := payloadNumber(scores, criterion)
			if !ok {
				continue
			}
			w := weights[criterion]
			if w == 0 {
				w = 1
			}
			sum += clamp01(v) * w
			weight += w
		}

		score := 0.0
		if weight > 0 {
			score = sum / weight
		} else {
			incomplete++
		}
		ranking = append(ranking, scored{Name: name, Score: round2(score)})
	}

	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Score > ranking[j].Score })

	confidence := Confidence(
		Signal{Name: "input_completeness", Value: 1 - ratio(incomplete, len(rawOptions)), Weight: 2},
		Signal{Name: "option_count", Value: float64(len(ranking)) / 3},
	)

	output := map[string]any{
		"ranking": ranking,
	}
	var margin float64
	if len(ranking) > 0 {
		output["recommended"] = ranking[0].Name
		if len(ranking) > 1 {
			margin = ranking[0].Score - ranking[1].Score
			output["margin"] = round2(margin)
		}
	}

	// A near-tie between the top options deserves a human decision.
	tightRace := len(ranking) > 1 && margin < 0.05

	return &engine.HandlerResult{
		Output:         output,
		Confidence:     confidence,
		RequiresReview: tightRace || a.helper.NeedsReview(confidence),
		TokensUsed:     EstimateTokens(output),
	}, nil
}
