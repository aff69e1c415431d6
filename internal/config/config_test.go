package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "fail", cfg.Filter.OnParseError)
	assert.Equal(t, int64(10*1024*1024), cfg.Filter.MaxFileSize)
	assert.Equal(t, []string{"clean", "smudge"}, cfg.Filter.RequiredCapabilities)
	assert.Equal(t, 2, cfg.Diff.MinSubtreeSize)
	assert.InDelta(t, 0.5, cfg.Diff.SimilarityThreshold, 1e-9)
	assert.Equal(t, 7, cfg.Merge.MarkerSize)
	assert.Equal(t, "markers", cfg.Merge.OnConflict)
	assert.Empty(t, cfg.File)
}

func TestLoad_Layers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yml := "log:\n  level: debug\nfilter:\n  on_parse_error: passthrough\ndiff:\n  format: yaml\n  context: 5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gitast.yaml"), []byte(yml), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GITAST_MERGE__MARKER_SIZE=9\n"), 0644))
	t.Setenv("GITAST_DIFF__FORMAT", "json")
	t.Cleanup(func() { _ = os.Unsetenv("GITAST_MERGE__MARKER_SIZE") })

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("context", 3, "")
	flags.String("on-conflict", "markers", "")
	require.NoError(t, flags.Parse([]string{"--context=1"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "gitast.yaml", cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level, "file")
	assert.Equal(t, "passthrough", cfg.Filter.OnParseError, "file")
	assert.Equal(t, "json", cfg.Diff.Format, "env beats file")
	assert.Equal(t, 1, cfg.Diff.Context, "flag beats file")
	assert.Equal(t, "markers", cfg.Merge.OnConflict, "unchanged flag keeps default")
	assert.Equal(t, 9, cfg.Merge.MarkerSize, ".env")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)

	cfg.Diff.Format = "html"
	cfg.Diff.SimilarityThreshold = 2
	cfg.Merge.MarkerSize = 0
	cfg.Filter.RequiredCapabilities = []string{"clean", "delay"}

	err = cfg.Validate()
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
	assert.Contains(t, err.Error(), "diff.format")
	assert.Contains(t, err.Error(), "delay")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
