package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/datasource"
	"github.com/leapstack-labs/leapquery/internal/query"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/spf13/cobra"
)

// Health check groups, in report order.
const (
	groupProject   = "project"
	groupSources   = "data sources"
	groupModels    = "models"
	groupPipelines = "pipelines"
)

// Health check statuses.
const (
	checkPass  = "pass"
	checkWarn  = "warn"
	checkError = "error"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a comprehensive project health check",
		Long: `Analyze your LeapQuery project for configuration and connectivity problems.

The doctor command checks:
- Configuration and state database
- Data source connections and cached table lists
- Semantic models, including whether a data source hosts each entity's table
- Pipeline definitions

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapquery doctor

  # Skip connection tests
  leapquery doctor --offline -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip data source connection tests")
	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary      ProjectSummary `json:"summary"`
	HealthChecks []HealthCheck  `json:"health_checks"`
	Score        int            `json:"score"`
	IssueCount   int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	ConfigFile  string `json:"config_file,omitempty"`
	StatePath   string `json:"state_path"`
	DataSources int    `json:"data_sources"`
	Entities    int    `json:"entities"`
	Pipelines   int    `json:"pipelines"`
	Runs        int    `json:"runs"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Status  string   `json:"status"` // "pass", "warn", "error"
	Details []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, offline bool) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := diagnose(cmd.Context(), cc, offline)

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		renderDoctorMarkdown(r, out)
	default:
		renderDoctorText(r, out)
	}
	return nil
}

func diagnose(ctx context.Context, cc *CommandContext, offline bool) *DoctorOutput {
	out := &DoctorOutput{Summary: ProjectSummary{ConfigFile: cc.Cfg.File, StatePath: cc.Cfg.StatePath}}
	add := func(group, name, status string, details ...string) {
		out.HealthChecks = append(out.HealthChecks, HealthCheck{Name: name, Group: group, Status: status, Details: details})
	}

	// Project
	if cc.Cfg.File == "" {
		add(groupProject, "config file", checkWarn, "no leapquery.yaml found; using defaults")
	} else {
		add(groupProject, "config file", checkPass, cc.Cfg.File)
	}
	if v, err := cc.Store.GetMigrationVersion(); err != nil {
		add(groupProject, "state database", checkError, err.Error())
	} else {
		add(groupProject, "state database", checkPass, fmt.Sprintf("schema version %d", v))
	}
	if runs, err := cc.Store.ListRuns(ctx, "", 0); err == nil {
		out.Summary.Runs = len(runs)
	}

	// Data sources
	sources, err := cc.Store.ListDataSources(ctx, cc.Cfg.Owner)
	if err != nil {
		add(groupSources, "catalog", checkError, err.Error())
	}
	out.Summary.DataSources = len(sources)
	if err == nil && len(sources) == 0 {
		add(groupSources, "catalog", checkWarn, "no data sources declared")
	}
	for _, ds := range sources {
		diagnoseSource(ctx, cc, ds, offline, add)
	}

	// Models
	models, err := semantic.LoadDir(cc.Cfg.ModelsDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		add(groupModels, "semantic models", checkWarn, fmt.Sprintf("models directory %s does not exist", cc.Cfg.ModelsDir))
	case err != nil:
		add(groupModels, "semantic models", checkError, err.Error())
	default:
		out.Summary.Entities = len(models.Entities())
		router := query.NewRouter(cc.Store, cc.Catalog, cc.Logger)
		for _, e := range models.Entities() {
			if _, err := router.FindDataSource(ctx, e.PrimaryTable, cc.Cfg.Owner); err != nil {
				add(groupModels, e.ID, checkWarn, err.Error())
				continue
			}
			add(groupModels, e.ID, checkPass)
		}
	}

	// Pipelines
	entries, err := os.ReadDir(cc.Cfg.PipelinesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		add(groupPipelines, "pipelines", checkError, err.Error())
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		out.Summary.Pipelines++
		def, err := transform.LoadFile(filepath.Join(cc.Cfg.PipelinesDir, entry.Name()))
		if err != nil {
			add(groupPipelines, entry.Name(), checkError, err.Error())
			continue
		}
		res := def.Validate()
		switch {
		case !res.Valid:
			add(groupPipelines, def.Name, checkError, res.Errors...)
		case len(res.Warnings) > 0:
			add(groupPipelines, def.Name, checkWarn, res.Warnings...)
		default:
			add(groupPipelines, def.Name, checkPass)
		}
	}

	for _, c := range out.HealthChecks {
		if c.Status != checkPass {
			out.IssueCount++
		}
	}
	out.Score = calculateHealthScore(out.HealthChecks)
	return out
}

func diagnoseSource(ctx context.Context, cc *CommandContext, ds datasource.DataSource, offline bool,
	add func(group, name, status string, details ...string)) {
	name := ds.ID
	if !offline {
		status, err := cc.Catalog.Test(ctx, ds.ID)
		switch {
		case err != nil:
			add(groupSources, name, checkError, err.Error())
			return
		case !status.OK:
			add(groupSources, name, checkError, status.Message)
			return
		}
	}
	if ds.RefreshedAt == nil {
		add(groupSources, name, checkWarn, "table list never refreshed; run 'leapquery source refresh "+ds.ID+"'")
		return
	}
	add(groupSources, name, checkPass, fmt.Sprintf("%d tables cached", len(ds.Tables)))
}

// calculateHealthScore computes a health score from 0-100. Errors cost
// twice as much as warnings.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, check := range checks {
		switch check.Status {
		case checkError:
			score -= 20
		case checkWarn:
			score -= 5
		}
	}
	return max(score, 0)
}

func statusIcon(r *output.Renderer, status string) string {
	styles := r.Styles()
	switch status {
	case checkWarn:
		return styles.Warning.Render("!")
	case checkError:
		return styles.Error.Render("✗")
	}
	return styles.Success.Render("✓")
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("LeapQuery Project Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Project Summary"))
	r.Printf("   Data sources: %d | Entities: %d | Pipelines: %d | Runs: %d\n",
		out.Summary.DataSources, out.Summary.Entities, out.Summary.Pipelines, out.Summary.Runs)
	r.Printf("   State: %s\n", out.Summary.StatePath)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}
		r.Println("   " + statusIcon(r, check.Status) + " " + check.Name)

		// Show first 3 details
		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println("# LeapQuery Project Health Report")
	r.Println("")

	r.Println("## Project Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Data sources", fmt.Sprint(out.Summary.DataSources)))
	r.Println(output.FormatKeyValue("Entities", fmt.Sprint(out.Summary.Entities)))
	r.Println(output.FormatKeyValue("Pipelines", fmt.Sprint(out.Summary.Pipelines)))
	r.Println(output.FormatKeyValue("Runs", fmt.Sprint(out.Summary.Runs)))
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}
		r.Printf("- **[%s]** %s\n", strings.ToUpper(check.Status), check.Name)
		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
}
