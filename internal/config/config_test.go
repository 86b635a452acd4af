package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 12, cfg.Pipeline.TopK)
	assert.Equal(t, 0.55, cfg.Pipeline.MinQualityScore)
	assert.Equal(t, 75.0, cfg.Pipeline.MinValidationScore)
	assert.Equal(t, 0.70, cfg.Pipeline.MinFunctionalityCoverage)
	assert.Equal(t, "warn", cfg.Pipeline.HardConstraintsMode)
	assert.Equal(t, 600, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 120, cfg.Pipeline.ChunkOverlap)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-existe.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: 20\n  hard_constraints_mode: fail\nserver:\n  port: 9090\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Pipeline.TopK)
	assert.Equal(t, "fail", cfg.Pipeline.HardConstraintsMode)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched keys keep defaults.
	assert.Equal(t, 600, cfg.Pipeline.ChunkSize)
}

func TestEnvWinsOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  top_k: 20\n"), 0644))
	t.Setenv("STORYFORGE_TOP_K", "7")
	t.Setenv("STORYFORGE_CONSTRAINTS_MODE", "fail")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.TopK)
	assert.Equal(t, "fail", cfg.Pipeline.HardConstraintsMode)
}

func TestStoragePaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/var/lib/storyforge"
	assert.Equal(t, "/var/lib/storyforge/chunks.db", cfg.ChunkDBPath())
	assert.Equal(t, "/var/lib/storyforge/runs.json", cfg.RunsPath())
	assert.Equal(t, "/var/lib/storyforge/learning.json", cfg.LearningPath())
	assert.Equal(t, "/var/lib/storyforge/feedback.json", cfg.FeedbackPath())
}
