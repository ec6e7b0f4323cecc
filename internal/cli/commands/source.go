package commands

import (
	"errors"
	"fmt"
	"strconv"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/spf13/cobra"
)

// NewSourceCommand creates the source command and its subcommands.
func NewSourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "source",
		Aliases: []string{"sources", "ds"},
		Short:   "Inspect and refresh data sources",
		Long: `Inspect the data sources declared in leapquery.yaml.

Data sources are registered in the state database on every invocation.
Their table lists are cached there by 'source refresh' and used to route
semantic queries to the source that hosts an entity's table.`,
	}

	cmd.AddCommand(newSourceListCommand())
	cmd.AddCommand(newSourceTestCommand())
	cmd.AddCommand(newSourceTablesCommand())
	cmd.AddCommand(newSourceSchemaCommand())
	cmd.AddCommand(newSourcePreviewCommand())
	cmd.AddCommand(newSourceSampleCommand())
	cmd.AddCommand(newSourceRefreshCommand())
	return cmd
}

func newSourceListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List data sources",
		Example: `  leapquery source list
  leapquery source list --owner analytics -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sources, err := cc.Store.ListDataSources(cmd.Context(), cc.Cfg.Owner)
			if err != nil {
				return err
			}
			return renderSources(cc.Renderer, sources)
		},
	}
}

func renderSources(r *output.Renderer, sources []datasource.DataSource) error {
	if r.EffectiveMode() == output.ModeJSON {
		if sources == nil {
			sources = []datasource.DataSource{}
		}
		return r.JSON(sources)
	}

	rows := make([]pretty.Row, 0, len(sources))
	for _, ds := range sources {
		certified := ""
		if ds.Certified {
			certified = "yes"
		}
		rows = append(rows, pretty.Row{
			ds.ID, ds.Name, ds.Config.Type, ds.Owner, certified,
			len(ds.Tables), output.FormatTime(ds.RefreshedAt),
		})
	}
	r.Grid(pretty.Row{"ID", "NAME", "TYPE", "OWNER", "CERTIFIED", "TABLES", "REFRESHED"}, rows)
	return nil
}

func newSourceTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "test <id>",
		Short:   "Test the connection to a data source",
		Example: `  leapquery source test sales_db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := cc.Catalog.Test(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if err := r.JSON(status); err != nil {
					return err
				}
			} else if status.OK {
				r.Success(fmt.Sprintf("%s: %s", args[0], status.Message))
			} else {
				r.Error(fmt.Sprintf("%s: %s", args[0], status.Message))
			}
			if !status.OK {
				return fmt.Errorf("connection test failed for %s", args[0])
			}
			return nil
		},
	}
}

func newSourceTablesCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "tables <id>",
		Short: "List the cached tables of a data source",
		Example: `  leapquery source tables sales_db
  leapquery source tables sales_db --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var ds *datasource.DataSource
			if refresh {
				ds, err = cc.Catalog.Refresh(cmd.Context(), args[0])
			} else {
				ds, err = cc.Store.GetDataSource(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				tables := ds.Tables
				if tables == nil {
					tables = []core.TableSchema{}
				}
				return r.JSON(tables)
			}
			if ds.RefreshedAt == nil && len(ds.Tables) == 0 {
				r.Warning(fmt.Sprintf("table list of %s has never been refreshed; use --refresh", ds.ID))
			}

			rows := make([]pretty.Row, 0, len(ds.Tables))
			for _, t := range ds.Tables {
				rows = append(rows, pretty.Row{t.Name, t.Schema, len(t.Columns), formatCount(t.RowCount), formatBytes(t.SizeBytes)})
			}
			r.Grid(pretty.Row{"TABLE", "SCHEMA", "COLUMNS", "ROWS", "SIZE"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-read the table list from the backend first")
	return cmd
}

func newSourceSchemaCommand() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:     "schema <id> <table>",
		Short:   "Describe the columns of a table",
		Example: `  leapquery source schema warehouse orders --schema sales`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, err := cc.Catalog.OpenSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = conn.Disconnect() }()

			ts, err := conn.GetSchema(cmd.Context(), args[1], schema)
			if err != nil {
				return err
			}

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(ts)
			}
			r.Header(2, ts.Name)
			rows := make([]pretty.Row, 0, len(ts.Columns))
			for i, c := range ts.Columns {
				def := ""
				if c.Default != nil {
					def = *c.Default
				}
				nullable := "NO"
				if c.Nullable {
					nullable = "YES"
				}
				rows = append(rows, pretty.Row{i + 1, c.Name, string(c.Type), c.NativeType, nullable, def})
			}
			r.Grid(pretty.Row{"#", "COLUMN", "TYPE", "NATIVE", "NULLABLE", "DEFAULT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Schema containing the table")
	return cmd
}

func newSourcePreviewCommand() *cobra.Command {
	var (
		schema string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "preview <id> <table>",
		Short: "Show the first rows of a table",
		Example: `  leapquery source preview sales_csv sales
  leapquery source preview warehouse orders --limit 20 -o csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("limit") {
				limit = cc.Cfg.PreviewLimit
			}
			conn, err := cc.Catalog.OpenSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = conn.Disconnect() }()

			data, err := conn.PreviewData(cmd.Context(), args[1], schema, limit)
			if err != nil {
				return err
			}
			return cc.Renderer.Table(data)
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Schema containing the table")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum rows to show (0 for all)")
	return cmd
}

func newSourceSampleCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "sample <id> <table> <column>",
		Short:   "Show distinct sample values of a column",
		Example: `  leapquery source sample sales_csv sales region`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, err := cc.Catalog.OpenSource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = conn.Disconnect() }()

			values := connector.SampleValues(cmd.Context(), conn, args[1], args[2], limit)
			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(values)
			}
			rows := make([]pretty.Row, len(values))
			for i, v := range values {
				rows[i] = pretty.Row{output.FormatValue(v)}
			}
			r.Grid(pretty.Row{args[2]}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", connector.DefaultSampleLimit, "Maximum values to show")
	return cmd
}

func newSourceRefreshCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [id...]",
		Short: "Re-read and cache the table lists of data sources",
		Example: `  leapquery source refresh sales_db
  leapquery source refresh --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("specify data source ids or --all")
			}

			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ids := args
			if all {
				sources, err := cc.Store.ListDataSources(cmd.Context(), cc.Cfg.Owner)
				if err != nil {
					return err
				}
				ids = make([]string, len(sources))
				for i, ds := range sources {
					ids[i] = ds.ID
				}
			}
			return refreshSources(cmd, cc, ids)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Refresh every data source of the owner")
	return cmd
}

func refreshSources(cmd *cobra.Command, cc *CommandContext, ids []string) error {
	results := cc.Catalog.RefreshAll(cmd.Context(), ids, cc.Cfg.RefreshConcurrency)

	r := cc.Renderer
	failed := 0
	type jsonResult struct {
		ID     string `json:"id"`
		Tables int    `json:"tables"`
		Error  string `json:"error,omitempty"`
	}
	out := make([]jsonResult, 0, len(results))
	for _, res := range results {
		jr := jsonResult{ID: res.ID, Tables: res.Tables}
		if res.Err != nil {
			failed++
			jr.Error = res.Err.Error()
		}
		out = append(out, jr)

		if r.EffectiveMode() == output.ModeJSON {
			continue
		}
		if res.Err != nil {
			r.StatusLine("failed", res.ID, res.Err.Error())
		} else {
			r.StatusLine("ok", res.ID, fmt.Sprintf("%d tables", res.Tables))
		}
	}
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d data sources failed to refresh", failed, len(results))
	}
	return nil
}

func formatCount(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func formatBytes(n *int64) string {
	if n == nil {
		return "-"
	}
	const unit = 1024
	b := *n
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for m := b / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
