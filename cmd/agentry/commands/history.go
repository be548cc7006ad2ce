package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentry/agentry/pkg/engine"
)

func newHistoryCommand() *cobra.Command {
	var (
		category string
		org      string
		project  string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the execution audit trail",
		Long: `List past executions, newest first. Filters narrow the result set;
an unset filter matches everything.`,
		Example: `  # Last 50 executions
  agentry history

  # Failed compliance executions for an organization
  agentry history --category compliance --org org-1 --status failed

  # Everything awaiting review
  agentry history --status requires_review`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setupRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			records, err := rt.dispatcher.History(ctx, engine.Filter{
				Category:       engine.Category(category),
				OrganizationID: org,
				ProjectID:      project,
				Status:         engine.Status(status),
				Limit:          limit,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No executions found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tAGENT\tSTATUS\tDURATION\tCREATED")
			for _, rec := range records {
				duration := "-"
				if rec.ExecutionTimeMs != nil {
					duration = fmt.Sprintf("%dms", *rec.ExecutionTimeMs)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID,
					rec.Category,
					rec.HandlerName,
					rec.Status,
					duration,
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&org, "org", "", "filter by organization")
	cmd.Flags().StringVar(&project, "project", "", "filter by project")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum records to return (default 50, capped at 500)")

	return cmd
}
