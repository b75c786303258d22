package conf_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lambda-feedback/procpipe/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Level  string `conf:"level"`
	Nested struct {
		Timeout time.Duration `conf:"timeout"`
		Workers int           `conf:"workers"`
	} `conf:"nested"`
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{"level": "info", "nested.workers": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 2, cfg.Nested.Workers)
}

func TestParse_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("LEVEL", "debug")
	t.Setenv("NESTED__TIMEOUT", "5s")

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{"level": "info"},
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 5*time.Second, cfg.Nested.Timeout)
}

func TestParse_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEVEL=warn\nNESTED__WORKERS=4\n"), 0o600))

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		DotEnvFile: path,
	})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, 4, cfg.Nested.Workers)
}

func TestParse_EnvOverridesDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEVEL=warn\n"), 0o600))

	t.Setenv("LEVEL", "error")

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		DotEnvFile: path,
	})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Level)
}

func TestParse_MissingDotEnvFileIsIgnored(t *testing.T) {
	_, err := conf.Parse[testConfig](conf.ParseOptions{
		DotEnvFile: filepath.Join(t.TempDir(), "missing.env"),
	})
	assert.NoError(t, err)
}
