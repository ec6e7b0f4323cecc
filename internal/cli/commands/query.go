package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/query"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Dimensions []string
	Measures   []string
	Filters    []string
	Limit      int
	ShowSQL    bool
	Input      string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [entity]",
		Short: "Run a semantic query against an entity",
		Long: `Run a business-level query against an entity of the semantic model.

The request names dimensions and measures by id. It is compiled to SQL and
executed on the owner's preferred data source whose cached table list
contains the entity's table: certified sources first, then the newest.

Filters take the form 'dimension operator value'. IN and NOT IN take a
comma-separated list. IS NULL and IS NOT NULL take no value.

A complete request can also be read as YAML or JSON from a file or stdin.
Without an entity on a terminal, an interactive shell is started.`,
		Example: `  # Total sales by region
  leapquery query orders --dim region --measure total_sales

  # Filtered and limited, showing the generated SQL
  leapquery query orders --dim region --measure total_sales \
    --filter 'region IN North,South' --filter 'status != cancelled' \
    --limit 10 --show-sql

  # Request from a file
  leapquery query --input request.yaml -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Dimensions, "dim", "d", nil, "Dimension ids to group by")
	cmd.Flags().StringSliceVarP(&opts.Measures, "measure", "m", nil, "Measure ids to aggregate")
	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "Filter as 'dimension operator value' (repeatable)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Maximum rows (default from query.default_limit)")
	cmd.Flags().BoolVar(&opts.ShowSQL, "show-sql", false, "Print the generated SQL")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read the request from a YAML or JSON file ('-' for stdin)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	interactive := len(args) == 0 && opts.Input == "" && stdinIsTerminal(cmd)

	var req *semantic.QueryRequest
	if !interactive {
		var err error
		if req, err = buildRequest(cmd, args, opts); err != nil {
			return err
		}
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := newQuerySession(cmd.Context(), cc)
	if err != nil {
		return err
	}
	if interactive {
		return runQueryREPL(cmd, session, opts.ShowSQL)
	}
	return session.run(cmd.Context(), req, opts.ShowSQL)
}

// querySession holds what every query of one invocation shares.
type querySession struct {
	cc     *CommandContext
	models *semantic.Catalog
	router *query.Router
}

func newQuerySession(ctx context.Context, cc *CommandContext) (*querySession, error) {
	models, err := semantic.LoadDir(cc.Cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load semantic models: %w", err)
	}
	mode, err := cc.Cfg.Query.Mode()
	if err != nil {
		return nil, err
	}
	router := query.NewRouter(cc.Store, cc.Catalog, cc.Logger)
	router.Mode = mode
	router.Limits = cc.Cfg.Query.Limits()

	if err := refreshStaleSources(ctx, cc); err != nil {
		return nil, err
	}
	return &querySession{cc: cc, models: models, router: router}, nil
}

func (s *querySession) run(ctx context.Context, req *semantic.QueryRequest, showSQL bool) error {
	entity, err := s.models.Get(req.EntityID)
	if err != nil {
		return err
	}
	result, err := s.router.Query(ctx, entity, *req, s.cc.Cfg.Owner)
	if err != nil {
		return err
	}
	return renderQueryResult(s.cc.Renderer, result, showSQL)
}

func stdinIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// buildRequest assembles the request from --input or from the entity
// argument and flags.
func buildRequest(cmd *cobra.Command, args []string, opts *QueryOptions) (*semantic.QueryRequest, error) {
	req := &semantic.QueryRequest{}

	if opts.Input != "" {
		var r io.Reader = cmd.InOrStdin()
		if opts.Input != "-" {
			f, err := os.Open(opts.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to read request: %w", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		// YAML is a superset of JSON.
		if err := yaml.NewDecoder(r).Decode(req); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
	}

	if len(args) > 0 {
		req.EntityID = args[0]
	}
	if req.EntityID == "" {
		return nil, errors.New("an entity is required")
	}
	req.DimensionIDs = append(req.DimensionIDs, opts.Dimensions...)
	req.MeasureIDs = append(req.MeasureIDs, opts.Measures...)
	for _, raw := range opts.Filters {
		f, err := ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		req.Filters = append(req.Filters, f)
	}
	if cmd.Flags().Changed("limit") {
		req.Limit = opts.Limit
	}
	return req, nil
}

// ParseFilter parses 'dimension operator value'. The operator may span
// several words ("NOT IN", "IS NOT NULL"); the longest match wins.
func ParseFilter(s string) (semantic.Filter, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return semantic.Filter{}, fmt.Errorf("invalid filter %q: expected 'dimension operator value'", s)
	}

	for n := min(3, len(fields)-1); n >= 1; n-- {
		op, ok := semantic.ParseOperator(strings.Join(fields[1:1+n], " "))
		if !ok {
			continue
		}
		rest := strings.Join(fields[1+n:], " ")
		f := semantic.Filter{DimensionID: fields[0], Operator: op}
		switch {
		case op.IsNullCheck():
			if rest != "" {
				return semantic.Filter{}, fmt.Errorf("invalid filter %q: %s takes no value", s, op)
			}
		case rest == "":
			return semantic.Filter{}, fmt.Errorf("invalid filter %q: missing value", s)
		case op.IsList():
			var values []any
			for _, part := range strings.Split(rest, ",") {
				if part = strings.TrimSpace(part); part != "" {
					values = append(values, parseScalar(part))
				}
			}
			if values == nil {
				values = []any{}
			}
			f.Value = values
		default:
			f.Value = parseScalar(rest)
		}
		return f, nil
	}
	return semantic.Filter{}, fmt.Errorf("invalid filter %q: unknown operator", s)
}

// parseScalar converts a filter literal into an integer, float or boolean
// when it reads as one. Quoted literals stay strings.
func parseScalar(s string) any {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil && strings.EqualFold(s, strconv.FormatBool(b)) {
		return b
	}
	return s
}

// refreshStaleSources refreshes the table lists of sources that were never
// refreshed so that routing can see them. Failures are warnings.
func refreshStaleSources(ctx context.Context, cc *CommandContext) error {
	sources, err := cc.Store.ListDataSources(ctx, cc.Cfg.Owner)
	if err != nil {
		return err
	}
	var stale []string
	for _, ds := range sources {
		if ds.RefreshedAt == nil {
			stale = append(stale, ds.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	cc.Logger.Debug("refreshing table lists", slog.Any("data_sources", stale))
	for _, res := range cc.Catalog.RefreshAll(ctx, stale, cc.Cfg.RefreshConcurrency) {
		if res.Err != nil {
			cc.Renderer.Warning(fmt.Sprintf("could not refresh %s: %v", res.ID, res.Err))
		}
	}
	return nil
}

func renderQueryResult(r *output.Renderer, result *query.Result, showSQL bool) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		if result.Data == nil {
			result.Data = []map[string]any{}
		}
		return r.JSON(result)
	case output.ModeCSV:
		return r.Table(result.Table)
	}

	if showSQL {
		r.Header(2, "Generated SQL")
		if r.EffectiveMode() == output.ModeMarkdown {
			r.Println("```sql")
			r.Println(result.GeneratedSQL)
			r.Println("```")
			r.Println("")
		} else {
			r.Println(r.Muted(result.GeneratedSQL))
			r.Println("")
		}
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Header(2, fmt.Sprintf("%s (%s)", result.EntityName, result.DataSource))
	}
	return r.Table(result.Table)
}
