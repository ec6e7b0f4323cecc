package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/config"
	"github.com/leapstack-labs/leapquery/internal/state"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/spf13/cobra"
)

// NewPipelineCommand creates the pipeline command and its subcommands.
func NewPipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipeline",
		Aliases: []string{"pipelines", "pl"},
		Short:   "Validate and run transformation pipelines",
		Long: `Validate and run transformation pipelines.

A pipeline is a YAML file holding an ordered list of steps. The first step
must read a table from a data source; later steps filter, join, aggregate,
select, sort or union the outputs of earlier steps, addressed by alias.

A pipeline argument is a file path, or a name resolved against pipelines_dir.`,
	}

	cmd.AddCommand(newPipelineValidateCommand())
	cmd.AddCommand(newPipelineRunCommand())
	cmd.AddCommand(newPipelineListCommand())
	cmd.AddCommand(newPipelineGraphCommand())
	return cmd
}

// resolvePipelinePath returns arg when it names a file, otherwise the
// matching file in the pipelines directory.
func resolvePipelinePath(cfg *config.Config, arg string) (string, error) {
	candidates := []string{arg}
	if !filepath.IsAbs(arg) && cfg.PipelinesDir != "" {
		base := filepath.Join(cfg.PipelinesDir, arg)
		candidates = append(candidates, base, base+".yaml", base+".yml")
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("pipeline not found: %s", arg)
}

func loadPipeline(cfg *config.Config, arg string) (*transform.Definition, error) {
	path, err := resolvePipelinePath(cfg, arg)
	if err != nil {
		return nil, err
	}
	def, err := transform.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

func newPipelineValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <pipeline>",
		Short:   "Check a pipeline without running it",
		Example: `  leapquery pipeline validate pipelines/daily_sales.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContextWithoutStore(cmd)
			def, err := loadPipeline(cc.Cfg, args[0])
			if err != nil {
				return err
			}

			res := def.Validate()
			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if res.Errors == nil {
					res.Errors = []string{}
				}
				if res.Warnings == nil {
					res.Warnings = []string{}
				}
				if err := r.JSON(res); err != nil {
					return err
				}
			} else {
				for _, w := range res.Warnings {
					r.Warning(w)
				}
				for _, e := range res.Errors {
					r.Error(e)
				}
				if res.Valid {
					r.Success(fmt.Sprintf("pipeline %s is valid (%d steps)", def.Name, len(def.Steps)))
				}
			}
			if !res.Valid {
				return fmt.Errorf("pipeline %s is invalid: %d errors", def.Name, len(res.Errors))
			}
			return nil
		},
	}
}

func newPipelineRunCommand() *cobra.Command {
	var (
		limit int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline and show its result",
		Long: `Run a pipeline and show its result. Every run is recorded in the state
database together with the outcome of each step.

With --watch the pipeline runs again whenever its definition file changes,
until interrupted.`,
		Example: `  leapquery pipeline run daily_sales
  leapquery pipeline run pipelines/daily_sales.yaml --limit 50 -o csv
  leapquery pipeline run daily_sales --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := resolvePipelinePath(cc.Cfg, args[0])
			if err != nil {
				return err
			}
			if !watch {
				return runPipelineFile(cmd.Context(), cc, path, limit)
			}

			rerun := func() {
				if err := runPipelineFile(cmd.Context(), cc, path, limit); err != nil {
					cc.Renderer.Error(err.Error())
				}
				cc.Renderer.Println(cc.Renderer.Muted(fmt.Sprintf("watching %s for changes (Ctrl+C to stop)", path)))
			}
			rerun()
			return watchFile(cmd.Context(), path, defaultDebounce, cc.Logger, rerun)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Truncate the final table to n rows")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Run again whenever the pipeline file changes")
	return cmd
}

func runPipelineFile(ctx context.Context, cc *CommandContext, path string, limit int) error {
	def, err := transform.LoadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	p, err := def.Build()
	if err != nil {
		return err
	}
	for _, w := range p.Warnings {
		cc.Renderer.Warning(w)
	}

	eng := transform.New(transform.Config{
		Sources:  cc.Catalog,
		Recorder: cc.Store,
		Logger:   cc.Logger,
	})
	res, err := eng.Run(ctx, p, transform.RunOptions{Limit: limit})
	if err != nil {
		return err
	}
	if err := renderRunResult(cc.Renderer, res); err != nil {
		return err
	}
	if res.Run.Status == transform.RunStatusFailed {
		return fmt.Errorf("pipeline %s failed: %s", p.Name, res.Run.ErrorMessage)
	}
	return nil
}

func renderRunResult(r *output.Renderer, res *transform.Result) error {
	if r.EffectiveMode() == output.ModeJSON {
		payload := struct {
			Run  *transform.Run   `json:"run"`
			Data []map[string]any `json:"data"`
		}{Run: res.Run, Data: []map[string]any{}}
		if res.Table != nil {
			if records := res.Table.Records(); records != nil {
				payload.Data = records
			}
		}
		return r.JSON(payload)
	}
	if r.EffectiveMode() == output.ModeCSV {
		if res.Table == nil {
			return nil
		}
		return r.Table(res.Table)
	}

	renderRun(r, res.Run)
	if res.Table != nil {
		r.Println("")
		r.Header(2, "Result")
		return r.Table(res.Table)
	}
	return nil
}

func newPipelineListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines and the outcome of their last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			pipelines, err := cc.Store.ListPipelines(cmd.Context())
			if err != nil {
				return err
			}
			pipelines = mergePipelineFiles(cc.Cfg, pipelines)

			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(pipelines)
			}
			rows := make([]pretty.Row, 0, len(pipelines))
			for _, p := range pipelines {
				status := string(p.LastRunStatus)
				if status == "" {
					status = "never run"
				}
				rows = append(rows, pretty.Row{p.Name, status, output.FormatTime(p.LastRunAt)})
			}
			r.Grid(pretty.Row{"PIPELINE", "LAST STATUS", "LAST RUN"}, rows)
			return nil
		},
	}
}

// mergePipelineFiles adds pipelines defined in the pipelines directory that
// have never run.
func mergePipelineFiles(cfg *config.Config, known []state.PipelineStatus) []state.PipelineStatus {
	seen := make(map[string]bool, len(known))
	for _, p := range known {
		seen[p.Name] = true
	}
	out := append([]state.PipelineStatus{}, known...)

	entries, err := os.ReadDir(cfg.PipelinesDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := transform.LoadFile(filepath.Join(cfg.PipelinesDir, e.Name()))
		if err != nil || seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		out = append(out, state.PipelineStatus{Name: def.Name})
	}
	return out
}
