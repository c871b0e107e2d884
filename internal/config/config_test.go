package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  root: /srv/orders
  db: orders.db
index:
  workers: 8
retrieval:
  hop_limit: 3
  decay: 0.7
ai:
  provider: ollama
  model: llama3
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/orders", cfg.Project.Root)
	assert.Equal(t, "orders.db", cfg.Project.DB)
	assert.Equal(t, 8, cfg.Index.Workers)
	assert.Equal(t, 3, cfg.Retrieval.HopLimit)
	assert.InDelta(t, 0.7, cfg.Retrieval.Decay, 1e-9)
	assert.Equal(t, "ollama", cfg.AI.Provider)

	// Unset fields keep their defaults.
	assert.Equal(t, 32, cfg.Retrieval.Cap)
	assert.InDelta(t, 0.15, cfg.Retrieval.OwnershipBonus, 1e-9)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("JAVAGENT_API_KEY", "secret")
	t.Setenv("JAVAGENT_AI_PROVIDER", "openai")
	t.Setenv("JAVAGENT_WORKERS", "12")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 12, cfg.Index.Workers)
}

func TestLoadConfig_InvalidValuesNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
index:
  workers: -1
retrieval:
  decay: 1.5
  cap: 0
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Index.Workers)
	assert.InDelta(t, 0.5, cfg.Retrieval.Decay, 1e-9)
	assert.Equal(t, 32, cfg.Retrieval.Cap)
}
