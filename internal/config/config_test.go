package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 7331, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Watch.DebounceMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Projects)
}

func TestLoad_FromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "templens.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 9000
watch:
  debounce_ms: 50
log:
  level: debug
  format: json
projects:
  - path: /work/app/templens.yml
`), 0o644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Watch.DebounceMs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.Projects, 1)
	p := cfg.Projects[0]
	assert.Equal(t, "/work/app/templens.yml", p.Path)
	// Per-project defaults fill in root, language version, and extensions.
	assert.Equal(t, "/work/app", p.Root)
	assert.Equal(t, "latest", p.LanguageVersion)
	assert.Equal(t, []string{".templ"}, p.Extensions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper(t)
	SetupEnv()
	t.Setenv("TEMPLENS_SERVER_PORT", "8081")
	t.Setenv("TEMPLENS_WATCH_DEBOUNCE_MS", "75")
	t.Setenv("TEMPLENS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 75, cfg.Watch.DebounceMs)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their registered defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoad_LogLevelFlagFallback(t *testing.T) {
	resetViper(t)
	viper.Set("log-level", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Server:   ServerConfig{Port: 7331},
		Projects: []ProjectConfig{{Path: "/a"}, {Path: "/b"}},
	}
	assert.NoError(t, valid.Validate())

	badPort := &Config{Server: ServerConfig{Port: 70000}}
	assert.ErrorContains(t, badPort.Validate(), "invalid server port")

	emptyPath := &Config{Projects: []ProjectConfig{{Path: ""}}}
	assert.ErrorContains(t, emptyPath.Validate(), "empty path")

	duplicate := &Config{Projects: []ProjectConfig{{Path: "/a"}, {Path: "/a"}}}
	assert.ErrorContains(t, duplicate.Validate(), "duplicate project path")
}
