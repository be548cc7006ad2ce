package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentry/agentry/pkg/engine"
)

func newDispatchCommand() *cobra.Command {
	var (
		inputPairs  []string
		inputJSON   string
		org         string
		project     string
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "dispatch <category>",
		Short: "Dispatch a single request to an agent",
		Long: `Route a request to the agent registered for the given category and print
the outcome. The execution is recorded in the audit trail regardless of
how it ends.

Categories: ` + strings.Join(categoryNames(), ", "),
		Example: `  # Analyze a supplier
  agentry dispatch procurement --org org-1 -i action=analyze_supplier -i supplier_id=sup-9

  # Run a compliance sweep with JSON input
  agentry dispatch compliance --org org-1 --input-json '{"action":"monitor"}'

  # Screen a vendor on behalf of a user
  agentry dispatch due_diligence --org org-1 -i vendor_id=v-12 --requested-by alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			input, err := buildInput(inputPairs, inputJSON)
			if err != nil {
				return err
			}

			rt, err := setupRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			req := engine.Request{
				Category:    engine.Category(args[0]),
				Scope:       buildScope(org, project),
				Input:       input,
				RequestedBy: requestedBy,
			}

			outcome := rt.dispatcher.Execute(ctx, req)
			return printOutcome(outcome)
		},
	}

	cmd.Flags().StringSliceVarP(&inputPairs, "input", "i", nil, "input parameters (key=value)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "input as a JSON object")
	cmd.Flags().StringVar(&org, "org", "", "organization scope")
	cmd.Flags().StringVar(&project, "project", "", "project scope")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requesting principal")

	return cmd
}

// buildInput merges key=value pairs over an optional JSON object.
func buildInput(pairs []string, rawJSON string) (map[string]any, error) {
	input := map[string]any{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &input); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input parameter %q (expected key=value)", pair)
		}
		input[key] = value
	}
	return input, nil
}

func buildScope(org, project string) engine.Scope {
	scope := engine.Scope{}
	if org != "" {
		scope["organization_id"] = org
	}
	if project != "" {
		scope["project_id"] = project
	}
	return scope
}

func categoryNames() []string {
	cats := engine.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return names
}

func printOutcome(outcome engine.Outcome) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	fmt.Printf("Execution: %s\n", outcome.ExecutionID)
	fmt.Printf("Status:    %s\n", outcome.Status)
	if outcome.Confidence != nil {
		fmt.Printf("Confidence: %.2f\n", *outcome.Confidence)
	}
	if outcome.RequiresReview {
		fmt.Println("Review:    required")
	}
	if outcome.Error != "" {
		fmt.Printf("Error:     %s\n", outcome.Error)
	}
	if len(outcome.Output) > 0 {
		data, err := json.MarshalIndent(outcome.Output, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("Output:\n%s\n", data)
	}
	fmt.Printf("Duration:  %dms\n", outcome.ExecutionTimeMs)
	return nil
}
