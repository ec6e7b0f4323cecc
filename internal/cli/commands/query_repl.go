package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const replPrompt = "leapquery> "

func runQueryREPL(cmd *cobra.Command, s *querySession, showSQL bool) error {
	ctx := cmd.Context()

	historyFile := ""
	if s.cc.Cfg.StatePath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(s.cc.Cfg.StatePath), "query_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newEntityCompleter(s.models),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := s.cc.Renderer
	r.Printf("LeapQuery interactive query (owner: %s)\n", s.cc.Cfg.Owner)
	r.Println("Type .help for commands, .quit to exit")
	r.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(cmd, s, line, &showSQL); quit {
				return nil
			}
			continue
		}

		req, err := parseREPLLine(line)
		if err == nil {
			err = s.run(ctx, req, showSQL)
		}
		if err != nil {
			r.Error(err.Error())
		}
		r.Println("")
	}
}

// handleDotCommand runs a dot-command and reports whether the REPL should exit.
func handleDotCommand(cmd *cobra.Command, s *querySession, line string, showSQL *bool) bool {
	r := s.cc.Renderer
	parts := strings.Fields(line)

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".entities":
		if err := listEntities(r, s.models.Entities()); err != nil {
			r.Error(err.Error())
		}

	case ".describe":
		if len(parts) < 2 {
			r.Warning("usage: .describe <entity>")
			return false
		}
		e, err := s.models.Get(parts[1])
		if err == nil {
			err = describeEntity(r, e)
		}
		if err != nil {
			r.Error(err.Error())
		}

	case ".sql":
		if len(parts) > 1 {
			*showSQL = strings.EqualFold(parts[1], "on")
		} else {
			*showSQL = !*showSQL
		}
		r.Println(r.Muted(fmt.Sprintf("show sql: %t", *showSQL)))

	default:
		r.Warning(fmt.Sprintf("unknown command: %s (type .help for commands)", parts[0]))
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Queries:
  <entity> [--dim d1,d2] [--measure m1] [--filter 'dim op value'] [--limit n]

Commands:
  .help              Show this help message
  .entities          List entities
  .describe <id>     Show the dimensions and measures of an entity
  .sql [on|off]      Toggle printing of the generated SQL
  .quit / .exit      Exit

Tips:
  - Use arrow keys to navigate history
  - Tab completion works for entity ids and dot-commands
`
	_, _ = fmt.Fprintln(w, help)
}

// parseREPLLine reads one interactive query using the query command's flags.
func parseREPLLine(line string) (*semantic.QueryRequest, error) {
	words, err := splitWords(line)
	if err != nil {
		return nil, err
	}

	var opts QueryOptions
	fs := pflag.NewFlagSet("query", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringSliceVarP(&opts.Dimensions, "dim", "d", nil, "")
	fs.StringSliceVarP(&opts.Measures, "measure", "m", nil, "")
	fs.StringArrayVarP(&opts.Filters, "filter", "f", nil, "")
	fs.IntVarP(&opts.Limit, "limit", "n", 0, "")
	if err := fs.Parse(words); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		return nil, errors.New("expected exactly one entity")
	}

	req := &semantic.QueryRequest{
		EntityID:     fs.Arg(0),
		DimensionIDs: opts.Dimensions,
		MeasureIDs:   opts.Measures,
		Limit:        opts.Limit,
	}
	for _, raw := range opts.Filters {
		f, err := ParseFilter(raw)
		if err != nil {
			return nil, err
		}
		req.Filters = append(req.Filters, f)
	}
	return req, nil
}

// splitWords splits on whitespace, keeping single- or double-quoted runs
// together without their quotes.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		quote   rune
		started bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote, started = r, true
		case r == ' ' || r == '\t':
			if started {
				words = append(words, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	if started {
		words = append(words, cur.String())
	}
	return words, nil
}

// newEntityCompleter completes entity ids, with their dimension and measure
// flags, and dot-commands.
func newEntityCompleter(models *semantic.Catalog) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	var ids []readline.PrefixCompleterInterface
	for _, e := range models.Entities() {
		ids = append(ids, readline.PcItem(e.ID))

		var dims, measures []readline.PrefixCompleterInterface
		for _, d := range e.Dimensions {
			if !d.Hidden {
				dims = append(dims, readline.PcItem(d.ID))
			}
		}
		for _, m := range e.Measures {
			if !m.Hidden {
				measures = append(measures, readline.PcItem(m.ID))
			}
		}
		items = append(items, readline.PcItem(e.ID,
			readline.PcItem("--dim", dims...),
			readline.PcItem("--measure", measures...),
			readline.PcItem("--filter"),
			readline.PcItem("--limit"),
		))
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".entities"),
		readline.PcItem(".describe", ids...),
		readline.PcItem(".sql", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
