package commands

import (
	"fmt"
	"strings"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/spf13/cobra"
)

// NewModelsCommand creates the models command.
func NewModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models [entity]",
		Short: "List semantic entities or describe one",
		Long: `List the entities defined in models_dir, or describe the dimensions and
measures of one entity.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  leapquery models
  leapquery models orders -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContextWithoutStore(cmd)
			catalog, err := semantic.LoadDir(cc.Cfg.ModelsDir)
			if err != nil {
				return fmt.Errorf("failed to load semantic models: %w", err)
			}
			if len(args) == 0 {
				return listEntities(cc.Renderer, catalog.Entities())
			}
			e, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			return describeEntity(cc.Renderer, e)
		},
	}
	return cmd
}

func listEntities(r *output.Renderer, entities []*semantic.Entity) error {
	if r.EffectiveMode() == output.ModeJSON {
		if entities == nil {
			entities = []*semantic.Entity{}
		}
		return r.JSON(entities)
	}

	r.Header(1, fmt.Sprintf("Entities (%d total)", len(entities)))
	rows := make([]pretty.Row, 0, len(entities))
	for _, e := range entities {
		certified := ""
		if e.Certified {
			certified = "yes"
		}
		rows = append(rows, pretty.Row{e.ID, e.Name, e.PrimaryTable, len(e.Dimensions), len(e.Measures), certified})
	}
	r.Grid(pretty.Row{"ID", "NAME", "TABLE", "DIMENSIONS", "MEASURES", "CERTIFIED"}, rows)
	return nil
}

func describeEntity(r *output.Renderer, e *semantic.Entity) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(e)
	}

	r.Header(1, e.Name)
	pairs := [][2]string{{"ID", e.ID}, {"Table", e.PrimaryTable}}
	if e.Description != "" {
		pairs = append(pairs, [2]string{"Description", e.Description})
	}
	if len(e.Tags) > 0 {
		pairs = append(pairs, [2]string{"Tags", strings.Join(e.Tags, ", ")})
	}
	r.KeyValues(pairs)
	r.Println("")

	r.Header(2, "Dimensions")
	dims := make([]pretty.Row, 0, len(e.Dimensions))
	for _, d := range e.Dimensions {
		if d.Hidden {
			continue
		}
		dims = append(dims, pretty.Row{d.ID, d.Name, d.Column, string(d.Type)})
	}
	r.Grid(pretty.Row{"ID", "NAME", "COLUMN", "TYPE"}, dims)
	r.Println("")

	r.Header(2, "Measures")
	measures := make([]pretty.Row, 0, len(e.Measures))
	for _, m := range e.Measures {
		if m.Hidden {
			continue
		}
		measures = append(measures, pretty.Row{m.ID, m.Name, string(m.Aggregation), m.Column})
	}
	r.Grid(pretty.Row{"ID", "NAME", "AGGREGATION", "COLUMN"}, measures)
	return nil
}
