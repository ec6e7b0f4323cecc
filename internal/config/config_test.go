package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapquery/internal/query"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register connectors so data source types validate.
	_ "github.com/leapstack-labs/leapquery/pkg/connectors/csv"
	_ "github.com/leapstack-labs/leapquery/pkg/connectors/postgres"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func rootFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("state", "", "")
	flags.String("owner", "", "")
	flags.StringP("output", "o", "", "")
	flags.BoolP("verbose", "v", false, "")
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, filepath.Join(dir, DefaultStateFile), cfg.StatePath)
	assert.Equal(t, filepath.Join(dir, DefaultModelsDir), cfg.ModelsDir)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, DefaultPreviewLimit, cfg.PreviewLimit)
	assert.Equal(t, DefaultRefreshConcurrency, cfg.RefreshConcurrency)
	assert.Equal(t, QueryConfig{DefaultLimit: 1000, MaxLimit: 10000, ParamMode: "bind"}, cfg.Query)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
owner: ana
state_path: state/leapquery.db
output: json
query:
  max_limit: 500
  default_limit: 50
  param_mode: substitute
data_sources:
  - id: sales
    name: Sales DB
    type: postgres
    certified: true
    config:
      host: ${LQ_TEST_HOST}
      database: sales
      username: app
      password: ${LQ_TEST_PASSWORD}
      options:
        sslmode: ${LQ_TEST_SSLMODE}
  - id: orders_csv
    config:
      type: csv
      path: data/orders.csv
      params:
        delimiter: ";"
`)
	t.Setenv("LQ_TEST_HOST", "db.internal")
	t.Setenv("LQ_TEST_PASSWORD", "s3cret")
	t.Setenv(EnvPrefix+"QUERY_MAX_LIMIT", "800")
	t.Setenv(EnvPrefix+"PREVIEW_LIMIT", "25")

	flags := rootFlags()
	require.NoError(t, flags.Parse([]string{"--output", "csv", "-v"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "ana", cfg.Owner)
	assert.Equal(t, filepath.Join(dir, "state", "leapquery.db"), cfg.StatePath)
	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, 800, cfg.Query.MaxLimit)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
	assert.Equal(t, 25, cfg.PreviewLimit)

	mode, err := cfg.Query.Mode()
	require.NoError(t, err)
	assert.Equal(t, query.ParamSubstitute, mode)

	require.Len(t, cfg.DataSources, 2)
	sales := cfg.DataSources[0].DataSource(cfg.Owner)
	assert.Equal(t, "postgres", sales.Config.Type)
	assert.Equal(t, "db.internal", sales.Config.Host)
	assert.Equal(t, "s3cret", sales.Config.Password)
	assert.Equal(t, "${LQ_TEST_SSLMODE}", sales.Config.Options["sslmode"])
	assert.Equal(t, "ana", sales.Owner)
	assert.True(t, sales.Certified)

	orders := cfg.DataSources[1].DataSource(cfg.Owner)
	assert.Equal(t, "orders_csv", orders.Name)
	assert.Equal(t, filepath.Join(dir, "data", "orders.csv"), orders.Config.Path)
	assert.Equal(t, ";", orders.Config.Params["delimiter"])
}

func TestLoad_SearchesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "owner: ana\n")
	sub := filepath.Join(dir, "pipelines", "daily")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, "ana", cfg.Owner)
	assert.Equal(t, filepath.Join(dir, DefaultModelsDir), cfg.ModelsDir)
}

func TestLoad_StateFlag(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	flags := rootFlags()
	require.NoError(t, flags.Parse([]string{"--state", "custom.db"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.StatePath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errs    []string
	}{
		{
			name:    "unknown output",
			content: "output: xml\n",
			errs:    []string{`unknown output format "xml"`},
		},
		{
			name:    "bad param mode",
			content: "query:\n  param_mode: inline\n",
			errs:    []string{`unknown param_mode "inline"`},
		},
		{
			name:    "default above max",
			content: "query:\n  default_limit: 20\n  max_limit: 10\n",
			errs:    []string{"query.default_limit (20) exceeds query.max_limit (10)"},
		},
		{
			name: "bad data sources",
			content: `
data_sources:
  - id: a
    type: oracle
  - id: a
    type: csv
  - type: csv
  - id: b
`,
			errs: []string{
				`data source a: unknown connector type "oracle"`,
				"data source a: duplicate id",
				"data source #2: id is required",
				"data source b: type is required",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path, nil)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
			for _, e := range tt.errs {
				assert.Contains(t, err.Error(), e)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LQ_SET", "value")
	t.Setenv("LQ_EMPTY", "")

	assert.Equal(t, "a-value-b", expandEnvVars("a-${LQ_SET}-b"))
	assert.Equal(t, "", expandEnvVars("${LQ_EMPTY}"))
	assert.Equal(t, "${LQ_UNSET_VAR}", expandEnvVars("${LQ_UNSET_VAR}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "state_path", envKey("LEAPQUERY_STATE_PATH"))
	assert.Equal(t, "query.param_mode", envKey("LEAPQUERY_QUERY_PARAM_MODE"))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx))
	assert.Equal(t, DefaultMaxQueryLimit, GetConfig(ctx).Query.MaxLimit)

	logger := slog.New(slog.DiscardHandler)
	cfg := &Config{Owner: "bo"}
	ctx = WithConfig(WithLogger(ctx, logger), cfg)
	assert.Same(t, logger, GetLogger(ctx))
	assert.Same(t, cfg, GetConfig(ctx))
}
