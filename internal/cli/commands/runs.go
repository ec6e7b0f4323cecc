package commands

import (
	"fmt"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command and its subcommands.
func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline run history",
	}
	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	var (
		pipeline string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Example: `  leapquery runs list
  leapquery runs list --pipeline daily_sales --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := cc.Store.ListRuns(cmd.Context(), pipeline, limit)
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if runs == nil {
					runs = []transform.Run{}
				}
				return r.JSON(runs)
			}
			if len(runs) == 0 {
				r.Println(r.Muted("no runs recorded"))
				return nil
			}
			rows := make([]pretty.Row, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, pretty.Row{
					run.ID, run.PipelineName, string(run.Status),
					output.FormatTime(&run.StartedAt), output.FormatDuration(run.Duration()),
					run.RowsProcessed,
				})
			}
			r.Grid(pretty.Row{"RUN", "PIPELINE", "STATUS", "STARTED", "DURATION", "ROWS"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&pipeline, "pipeline", "p", "", "Only runs of this pipeline")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "show <run-id>",
		Short:   "Show one run with its step log",
		Example: `  leapquery runs show 6f1c2a9e-0d4b-4c1e-9a63-2f0b5d7c8e11`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := cc.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cc.Renderer.EffectiveMode() == output.ModeJSON {
				return cc.Renderer.JSON(run)
			}
			renderRun(cc.Renderer, run)
			return nil
		},
	}
}

// renderRun writes a run summary followed by its step log.
func renderRun(r *output.Renderer, run *transform.Run) {
	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	pairs := [][2]string{
		{"Pipeline", run.PipelineName},
		{"Status", r.Styles().Status(string(run.Status)).Render(string(run.Status))},
		{"Started", output.FormatTime(&run.StartedAt)},
		{"Completed", output.FormatTime(run.CompletedAt)},
		{"Duration", output.FormatDuration(run.Duration())},
		{"Rows", fmt.Sprint(run.RowsProcessed)},
	}
	if run.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", run.ErrorMessage})
	}
	r.KeyValues(pairs)
	r.Println("")

	rows := make([]pretty.Row, 0, len(run.Steps))
	for _, s := range run.Steps {
		rows = append(rows, pretty.Row{
			s.Order, string(s.Type), s.Name, s.OutputAlias, s.RowsOut,
			output.FormatDuration(s.ExecutionTime), string(s.Status),
		})
	}
	r.Grid(pretty.Row{"#", "TYPE", "NAME", "ALIAS", "ROWS", "TIME", "STATUS"}, rows)
}
