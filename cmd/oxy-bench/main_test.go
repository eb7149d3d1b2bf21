package main

import (
	"bufio"
	"bytes"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/engine/config"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("\n  WGPU \n"))
	assert.Equal(t, "wgpu", prompt(in, &out, 12.5))
	assert.Contains(t, out.String(), "12.50 FPS")
}

func TestPrompt_EOFExits(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, exitChoice, prompt(bufio.NewReader(strings.NewReader("")), &out, 0))
}

func TestFlags_OnlyExplicitValuesOverride(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-backend", "headless", "-models", "7"})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Scene = "simple"
	cfg.VSync = true
	f.apply(fs, &cfg)

	assert.Equal(t, "headless", cfg.Backend)
	assert.Equal(t, 7, cfg.ModelCount)
	assert.Equal(t, "simple", cfg.Scene)
	assert.True(t, cfg.VSync)
}

func TestRun_UnknownThenExit(t *testing.T) {
	var out bytes.Buffer
	err := run(config.Default(), filepath.Join(t.TempDir(), "bench.toml"), strings.NewReader("opengl\nexit\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `unknown backend "opengl"`)
}

func TestRun_PresetUnknownBackendFails(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "metal"
	err := run(cfg, filepath.Join(t.TempDir(), "bench.toml"), strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "metal")
}

func TestRun_HeadlessMissingModelsFails(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "headless"
	cfg.ResourceDir = t.TempDir()
	err := run(cfg, filepath.Join(t.TempDir(), "bench.toml"), strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "placement 0")
}

func TestFlags_ExpandsHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f, err := parseFlags(fs, []string{"-config", "~/bench.toml", "-resources", "assets"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bench.toml"), f.configPath)
	assert.Equal(t, "assets", f.resources)
}
