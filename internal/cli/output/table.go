package output

import (
	"fmt"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/leapstack-labs/leapquery/pkg/table"
)

// Table renders t in the renderer's mode. JSON output is a list of records.
func (r *Renderer) Table(t *table.Table) error {
	if r.EffectiveMode() == ModeJSON {
		records := t.Records()
		if records == nil {
			records = []map[string]any{}
		}
		return r.JSON(records)
	}

	header := make(pretty.Row, 0, t.Width())
	for _, name := range t.ColumnNames() {
		header = append(header, name)
	}
	rows := make([]pretty.Row, t.Len())
	for i := range rows {
		row := t.Row(i)
		out := make(pretty.Row, len(row))
		for j, v := range row {
			out[j] = FormatValue(v)
		}
		rows[i] = out
	}
	r.Grid(header, rows)
	return nil
}

// Grid renders a header and rows as a table in the renderer's mode.
func (r *Renderer) Grid(header pretty.Row, rows []pretty.Row) {
	tw := pretty.NewWriter()
	tw.SetOutputMirror(r.w)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Style().Format.Header = text.FormatDefault

	switch r.EffectiveMode() {
	case ModeCSV:
		tw.RenderCSV()
	case ModeMarkdown:
		if len(rows) == 0 {
			r.Println("(0 rows)")
			return
		}
		tw.RenderMarkdown()
	default:
		if len(rows) == 0 {
			r.Println("(0 rows)")
			return
		}
		tw.SetStyle(pretty.StyleLight)
		tw.Style().Format.Header = text.FormatDefault
		tw.Render()
		r.Println(r.Muted(fmt.Sprintf("(%d rows)", len(rows))))
	}
}
