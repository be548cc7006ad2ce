package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentry/agentry/pkg/engine"
)

// batchFile is the on-disk format for a fan-out batch. YAML and JSON both
// parse through the yaml decoder.
type batchFile struct {
	Requests []batchRequest `yaml:"requests"`
}

type batchRequest struct {
	Category     string         `yaml:"category"`
	Organization string         `yaml:"organization_id"`
	Project      string         `yaml:"project_id"`
	Input        map[string]any `yaml:"input"`
	RequestedBy  string         `yaml:"requested_by"`
}

func newBatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Dispatch a batch of requests concurrently",
		Long: `Read requests from a YAML or JSON file and dispatch them all at once.
Each request runs in isolation; one failure never affects the others.
Outcomes are printed in the same order as the file.`,
		Example: `  # requests.yaml:
  #   requests:
  #     - category: compliance
  #       organization_id: org-1
  #       input: {action: monitor}
  #     - category: safety
  #       organization_id: org-1
  #       input: {action: incident_trends}
  agentry batch requests.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}

			var file batchFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse batch file: %w", err)
			}
			if len(file.Requests) == 0 {
				return fmt.Errorf("batch file contains no requests")
			}

			reqs := make([]engine.Request, len(file.Requests))
			for i, br := range file.Requests {
				reqs[i] = engine.Request{
					Category:    engine.Category(br.Category),
					Scope:       buildScope(br.Organization, br.Project),
					Input:       br.Input,
					RequestedBy: br.RequestedBy,
				}
			}

			rt, err := setupRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			outcomes := rt.dispatcher.ExecuteMany(ctx, reqs)

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(outcomes)
			}

			succeeded := 0
			for i, outcome := range outcomes {
				status := "FAIL"
				if outcome.Success {
					status = "OK"
					succeeded++
				}
				fmt.Printf("[%d] %-4s %-16s %s", i, status, reqs[i].Category, outcome.Status)
				if outcome.Error != "" {
					fmt.Printf("  %s", outcome.Error)
				}
				fmt.Println()
			}
			fmt.Printf("%d/%d succeeded\n", succeeded, len(outcomes))
			return nil
		},
	}

	return cmd
}
