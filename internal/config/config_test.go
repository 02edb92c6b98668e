package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venuegrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
provider:
  api_key: file-key
  keywords: [pub]
defaults:
  step_km: 5
  radius_km: 6
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "venuegrid.db", cfg.DBPath) // untouched default
	assert.Equal(t, "file-key", cfg.Provider.APIKey)
	assert.Equal(t, []string{"pub"}, cfg.Provider.Keywords)
	assert.Equal(t, 5.0, cfg.Defaults.StepKm)
	assert.Equal(t, 6.0, cfg.Defaults.RadiusKm)
}

func TestLoadConfig_EnvKeyOverridesFile(t *testing.T) {
	path := writeConfig(t, `
provider:
  api_key: file-key
`)
	t.Setenv("VENUEGRID_API_KEY", "env-key")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")

	_, err := LoadConfig(path)

	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Provider.Keywords = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Defaults.StepKm = 0
	assert.Error(t, cfg.Validate())

	// A step wider than the tile radius leaves uncovered gaps between tiles.
	cfg = DefaultConfig()
	cfg.Defaults.StepKm = 20
	cfg.Defaults.RadiusKm = 12
	assert.Error(t, cfg.Validate())
}
