package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/config"
	"github.com/leapstack-labs/leapquery/internal/semantic"
	"github.com/leapstack-labs/leapquery/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapquery/pkg/connectors/csv"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name: "init empty directory",
			args: []string{},
			wantFiles: []string{
				"leapquery.yaml",
				".gitignore",
				"models",
				"pipelines",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapquery.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "leapquery.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantFiles: []string{"leapquery.yaml", "models"},
		},
		{
			name: "init example in subdirectory",
			args: []string{"demo", "--example"},
			wantFiles: []string{
				"demo/leapquery.yaml",
				"demo/data/sales.csv",
				"demo/data/customers.csv",
				"demo/models/sales.yaml",
				"demo/pipelines/revenue_by_segment.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, f))
				assert.False(t, os.IsNotExist(err), "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"), "--force flag should exist")
	assert.NotNil(t, cmd.Flags().Lookup("example"), "--example flag should exist")
}

func TestInitCreatesValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "models"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(tmpDir, "pipelines"), cfg.PipelinesDir)
	assert.Empty(t, cfg.DataSources)
}

func TestInitExampleIsConsistent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--example"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	require.Len(t, cfg.DataSources, 2)
	assert.Equal(t, filepath.Join(tmpDir, "data", "sales.csv"), cfg.DataSources[0].Config.Path)

	models, err := semantic.LoadDir(cfg.ModelsDir)
	require.NoError(t, err)
	_, err = models.Get("sales")
	require.NoError(t, err)

	def, err := transform.LoadFile(filepath.Join(cfg.PipelinesDir, "revenue_by_segment.yaml"))
	require.NoError(t, err)
	res := def.Validate()
	assert.True(t, res.Valid, "errors: %v", res.Errors)
}

func TestGroupTemplateFiles(t *testing.T) {
	files, err := listTemplateFiles("example")
	require.NoError(t, err)
	assert.NotContains(t, files, "models/.gitkeep")

	groups := groupTemplateFiles(files)
	assert.ElementsMatch(t, []string{".gitignore", "leapquery.yaml"}, groups["config"])
	assert.Equal(t, []string{"models/sales.yaml"}, groups["models"])
	assert.Equal(t, []string{"pipelines/revenue_by_segment.yaml"}, groups["pipelines"])
	assert.Len(t, groups["data"], 2)
}
