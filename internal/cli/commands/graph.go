package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/spf13/cobra"
)

// GraphOutput is the JSON form of a pipeline's data flow.
type GraphOutput struct {
	Pipeline   string                  `json:"pipeline"`
	Levels     [][]transform.GraphNode `json:"levels"`
	TotalSteps int                     `json:"total_steps"`
	TotalEdges int                     `json:"total_edges"`
}

func newPipelineGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <pipeline>",
		Short: "Show how data flows between pipeline steps",
		Long: `Display the steps of a pipeline grouped by depth.

Source steps are level 0. Every other step sits one level below the
deepest step it reads from.`,
		Example: `  leapquery pipeline graph daily_sales
  leapquery pipeline graph daily_sales -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContextWithoutStore(cmd)
			def, err := loadPipeline(cc.Cfg, args[0])
			if err != nil {
				return err
			}
			p, err := def.Build()
			if err != nil {
				return err
			}

			levels := p.Levels()
			switch cc.Renderer.EffectiveMode() {
			case output.ModeJSON:
				return cc.Renderer.JSON(GraphOutput{
					Pipeline:   p.Name,
					Levels:     levels,
					TotalSteps: len(p.Steps),
					TotalEdges: p.EdgeCount(),
				})
			case output.ModeMarkdown:
				graphMarkdown(cc.Renderer, p, levels)
			default:
				graphText(cc.Renderer, p, levels)
			}
			return nil
		},
	}
}

func graphText(r *output.Renderer, p *transform.Pipeline, levels [][]transform.GraphNode) {
	styles := r.Styles()
	r.Header(1, "Pipeline "+p.Name)

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, n := range level {
			r.Printf("  %s %s\n", styles.Bold.Render(n.Alias), r.Muted("("+nodeLabel(n)+")"))
			if len(n.Inputs) > 0 {
				r.Printf("    %s %s\n", r.Muted("reads:"), strings.Join(n.Inputs, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("    %s %s\n", r.Muted("used by:"), strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}
	r.Println(r.Muted(fmt.Sprintf("Total: %d steps, %d edges", len(p.Steps), p.EdgeCount())))
}

func graphMarkdown(r *output.Renderer, p *transform.Pipeline, levels [][]transform.GraphNode) {
	r.Header(1, "Pipeline "+p.Name)

	for i, level := range levels {
		name := fmt.Sprintf("Level %d", i)
		if i == 0 {
			name = "Level 0 (Sources)"
		}
		r.Header(2, name)
		for _, n := range level {
			r.Printf("- %s (%s)\n", n.Alias, nodeLabel(n))
			if len(n.Inputs) > 0 {
				r.Printf("  - reads: %s\n", strings.Join(n.Inputs, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Header(2, "Summary")
	r.KeyValues([][2]string{
		{"Total Steps", fmt.Sprintf("%d", len(p.Steps))},
		{"Total Edges", fmt.Sprintf("%d", p.EdgeCount())},
	})
}

func nodeLabel(n transform.GraphNode) string {
	if n.Name != "" && n.Name != string(n.Kind) {
		return fmt.Sprintf("%s: %s", n.Kind, n.Name)
	}
	return string(n.Kind)
}
