package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 60*time.Second, c.TimeLimit())
	assert.Equal(t, DefaultModelCount, c.ModelCount)
}

func TestLoad_AppliesDefaultsToMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = \"wgpu\"\nmodel_count = 12\nvsync = true\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wgpu", c.Backend)
	assert.Equal(t, 12, c.ModelCount)
	assert.True(t, c.VSync)
	assert.Equal(t, DefaultScene, c.Scene)
	assert.Equal(t, DefaultWidth, c.Width)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte("modle_count = 3\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "decode config")
}

func TestSave_RoundTripsLastFPS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bench.toml")
	c := Default()
	c.Backend = "vulkan"
	c.LastFPS = 143.5

	require.NoError(t, c.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestNormalize_ClampsNegativeModelCount(t *testing.T) {
	c := Config{ModelCount: -4}
	c.Normalize()
	assert.Zero(t, c.ModelCount)
}
