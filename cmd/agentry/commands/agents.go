package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentry/agentry/pkg/agents"
	"github.com/agentry/agentry/pkg/engine"
)

func newAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List registered agents and their categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The listing needs no store or telemetry; build a bare registry.
			registry := engine.NewRegistry()
			if err := agents.RegisterAll(registry, agents.Deps{
				Logger: zerolog.Nop(),
			}); err != nil {
				return err
			}

			type entry struct {
				Category string `json:"category"`
				Agent    string `json:"agent"`
			}
			entries := make([]entry, 0, registry.Len())
			for _, cat := range registry.Categories() {
				handler, ok := registry.Lookup(cat)
				if !ok {
					continue
				}
				entries = append(entries, entry{
					Category: string(cat),
					Agent:    handler.Name(),
				})
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tAGENT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.Category, e.Agent)
			}
			return w.Flush()
		},
	}

	return cmd
}
