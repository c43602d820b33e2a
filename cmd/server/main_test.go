package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/imgclass-api/internal/model"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "")

	require.NoError(t, rootCmd.ParseFlags([]string{
		"--model", filepath.Join(dir, "m.onnx"),
		"--labels", filepath.Join(dir, "labels.json"),
		"--device", "cpu",
		"--filter", "lanczos",
		"--port", "9191",
		"--log-format", "console",
	}))

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "m.onnx"), cfg.Model.Path)
	assert.Equal(t, filepath.Join(dir, "labels.json"), cfg.Model.Labels)
	assert.Equal(t, "cpu", cfg.Model.Device)
	assert.Equal(t, "lanczos", cfg.Preprocess.Filter)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestClassifyMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"classify",
		"--model", filepath.Join(dir, "missing.onnx"),
		"--labels", filepath.Join(dir, "missing.json"),
		"--device", "cpu",
		"--filter", "bilinear",
		"--port", "8080",
		"--log-format", "json",
		"--log-level", "error",
		filepath.Join(dir, "cat.jpg"),
	})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrArtifactMissing)
	assert.Empty(t, out.String())
}
