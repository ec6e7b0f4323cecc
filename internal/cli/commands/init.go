package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapquery/internal/cli/output"
	"github.com/leapstack-labs/leapquery/internal/config"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapQuery project",
		Long: `Initialize a new LeapQuery project with default directory structure and configuration.

This creates:
  - models/ directory for semantic entity definitions
  - pipelines/ directory for pipeline definitions
  - leapquery.yaml configuration file

Use --example to create a working demo project with two CSV data sources,
a semantic model and a pipeline joining them.`,
		Example: `  # Initialize in current directory
  leapquery init

  # Initialize with a full working example
  leapquery init --example

  # Initialize in a new directory
  leapquery init my-project --example

  # Force overwrite existing config
  leapquery init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			r := NewCommandContextWithoutStore(cmd).Renderer
			if example {
				return runInit(r, dir, "example", force)
			}
			return runInit(r, dir, "minimal", force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with data, a model and a pipeline")

	return cmd
}

func runInit(r *output.Renderer, dir, template string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	if err := copyTemplate(template, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles(template)
	groups := groupTemplateFiles(files)
	for _, section := range []struct{ key, title string }{
		{"config", "Configuration"},
		{"data", "Data"},
		{"models", "Models"},
		{"pipelines", "Pipelines"},
	} {
		if len(groups[section.key]) == 0 {
			continue
		}
		r.Header(2, section.title)
		for _, f := range groups[section.key] {
			r.StatusLine("ok", f, "")
		}
		r.Println("")
	}

	if template == "example" {
		r.Success("LeapQuery project initialized with example data!")
		r.Println("")
		r.Println("Next steps:")
		r.Println("  leapquery source refresh --all                         Cache the table lists")
		r.Println("  leapquery query sales --dim region --measure revenue   Run a semantic query")
		r.Println("  leapquery pipeline run revenue_by_segment              Run the example pipeline")
		r.Println("  leapquery runs list                                    Inspect run history")
		return nil
	}

	r.Success("LeapQuery project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Declare your data sources in leapquery.yaml")
	r.Println("  2. Describe entities in models/")
	r.Println("  3. Run 'leapquery source refresh --all' to cache table lists")
	r.Println("  4. Run 'leapquery doctor' to check the setup")
	return nil
}
