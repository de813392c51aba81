package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_CurrentVersion(t *testing.T) {
	path := writeSettings(t, `
version: 2
data_dir: /var/lib/starrand
draw:
  count: 5
  mode: equal
  allow_repeat: true
history:
  index_cap: 250
animation:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/starrand", cfg.DataDir)
	assert.Equal(t, 5, cfg.Draw.Count)
	assert.Equal(t, ModeEqual, cfg.Draw.Mode)
	assert.True(t, cfg.Draw.AllowRepeat)
	assert.Equal(t, 250, cfg.History.IndexCap)
	assert.False(t, cfg.Animation.Enabled)
}

func TestLoad_MigratesV1(t *testing.T) {
	path := writeSettings(t, `
version: 1
data_dir: legacy-data
draw_count: 3
draw_mode: 1
allow_repeat: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy-data", cfg.DataDir)
	assert.Equal(t, 3, cfg.Draw.Count)
	assert.Equal(t, ModeWeighted, cfg.Draw.Mode)
	assert.True(t, cfg.Draw.AllowRepeat)
	// Sections v1 never had take defaults.
	assert.Equal(t, Default().History, cfg.History)
	assert.Equal(t, Default().Animation, cfg.Animation)
}

func TestLoad_MigratesUnversioned(t *testing.T) {
	path := writeSettings(t, "draw_count: 2\ndraw_mode: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Draw.Count)
	assert.Equal(t, ModeEqual, cfg.Draw.Mode)
}

func TestLoad_UnknownVersionRejected(t *testing.T) {
	path := writeSettings(t, "version: 99\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeSettings(t, "version: 2\ndraw:\n  count: 2\n")
	t.Setenv("STARRAND_DRAW_COUNT", "7")
	t.Setenv("STARRAND_DRAW_MODE", "equal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Draw.Count)
	assert.Equal(t, ModeEqual, cfg.Draw.Mode)
}

func TestLoad_InvalidMode(t *testing.T) {
	path := writeSettings(t, "version: 2\ndraw:\n  mode: chaotic\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidCount(t *testing.T) {
	path := writeSettings(t, "version: 2\ndraw:\n  count: -1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	cfg := Default()
	cfg.Draw.Count = 9
	cfg.History.IndexCap = 42
	require.NoError(t, Save(path, cfg))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
