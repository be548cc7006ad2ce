package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentry/agentry/pkg/stores"
)

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load domain records from a YAML fixture file",
		Long: `Upsert domain records (suppliers, bids, incidents, tasks, and so on)
from a YAML file into the store. Records with an existing id are
replaced, so seeding is idempotent.`,
		Example: `  agentry seed fixtures/org-1.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setupRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			seedCtx, span := rt.tracer.Start(ctx, "store.seed")
			count, err := stores.SeedFromFile(seedCtx, rt.store, args[0])
			span.End()
			if err != nil {
				return err
			}

			fmt.Printf("Seeded %d records from %s\n", count, args[0])
			return nil
		},
	}

	return cmd
}
