package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

func validConfig() Config {
	cfg := Default()
	cfg.InputPath = "in"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "tape" }},
		{"input", func(c *Config) { c.InputPath = "" }},
		{"output", func(c *Config) { c.OutputFolder = "" }},
		{"format", func(c *Config) { c.Format = core.FormatBMP }},
		{"quality", func(c *Config) { c.Quality = 101 }},
		{"geometry", func(c *Config) { c.Geometry = core.Geometry{} }},
		{"threshold", func(c *Config) { c.GrayscaleThreshold = -1 }},
		{"inflight", func(c *Config) { c.MaxInFlight = 0 }},
		{"chunk", func(c *Config) { c.ChunkSize = 0 }},
		{"chain", func(c *Config) { c.Chains = []core.Chain{{MinWidth: 10, MaxWidth: 5}} }},
		{"zero tile", func(c *Config) { c.Chains = []core.Chain{{Color: true, TileToken: "0"}} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestParseChain(t *testing.T) {
	c, err := ParseChain(ChainRecord{
		MinResolution:             "100x200",
		MaxResolution:             "0x0",
		IsGrayscale:               true,
		MaxScaleFactor:            2,
		ResizeHeightBeforeUpscale: 1200,
		ModelFilePath:             core.NoModel,
		ModelTileSize:             "512",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, c.MinWidth)
	assert.Equal(t, 200, c.MinHeight)
	assert.Zero(t, c.MaxWidth)
	assert.True(t, c.Grayscale)
	assert.False(t, c.HasModel())
	assert.Equal(t, "512", c.TileToken)
}

func TestParseChains_CollectsAllErrors(t *testing.T) {
	_, err := ParseChains([]ChainRecord{
		{MinResolution: "axb"},
		{MinResolution: "0x0", MaxResolution: "0x0"},
		{MaxResolution: "12"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidChain))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfig))
	assert.Contains(t, err.Error(), "chain 0")
	assert.Contains(t, err.Error(), "chain 2")
}

const settingsDoc = `{
  "SelectedWorkflowIndex": 1,
  "ModelsDirectory": "/models",
  "UseCpu": true,
  "UseFp16": false,
  "SelectedDeviceIndex": 3,
  "Workflows": {"$values": [
    {"SelectedTabIndex": 1, "InputFolderPath": "unused"},
    {
      "SelectedTabIndex": 0,
      "InputFilePath": "/in/vol1.cbz",
      "OutputFolderPath": "/out",
      "OutputFilename": "%filename%-up",
      "OverwriteExistingFiles": true,
      "AvifSelected": true,
      "LossyCompressionQuality": 60,
      "ModeHeightSelected": true,
      "ResizeHeightAfterUpscale": 1600,
      "GrayscaleDetectionThreshold": 20,
      "Chains": {"$values": [
        {"MinResolution": "0x0", "MaxResolution": "0x0", "IsColor": true, "ModelFilePath": "x.pth", "ModelTileSize": "Maximum"}
      ]}
    }
  ]}
}`

func TestSettingsApply(t *testing.T) {
	s, err := ParseSettings([]byte(settingsDoc))
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, s.Apply(&cfg))

	assert.Equal(t, ModeFile, cfg.Mode)
	assert.Equal(t, "/in/vol1.cbz", cfg.InputPath)
	assert.Equal(t, "/out", cfg.OutputFolder)
	assert.Equal(t, "%filename%-up", cfg.OutputFilename)
	assert.True(t, cfg.Overwrite)
	assert.Equal(t, core.FormatAVIF, cfg.Format)
	assert.Equal(t, 60, cfg.Quality)
	assert.Equal(t, core.Geometry{Height: 1600}, cfg.Geometry)
	assert.Equal(t, 20, cfg.GrayscaleThreshold)
	assert.Equal(t, "/models", cfg.ModelsDir)
	assert.Equal(t, core.DeviceOptions{UseCPU: true, DeviceIndex: 3}, cfg.Device)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, "x.pth", cfg.Chains[0].ModelPath)
	require.NoError(t, Validate(cfg))
}

func TestSettings_BoxFitWhenNoModeSelected(t *testing.T) {
	wf := Workflow{DisplayDeviceWidth: 1264, DisplayDeviceHeight: 1680}
	assert.Equal(t, core.Geometry{Width: 1264, Height: 1680}, wf.geometry())
	assert.Equal(t, core.FormatJPEG, wf.format())
}

func TestSettings_WorkflowOutOfRange(t *testing.T) {
	s := &Settings{SelectedWorkflowIndex: 2}
	cfg := Default()
	assert.Error(t, s.Apply(&cfg))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	cfg := Default()
	require.NoError(t, s.Apply(&cfg))
	assert.Equal(t, ModeFolder, cfg.Mode)
	assert.Equal(t, core.FormatWebP, cfg.Format)
	assert.Len(t, cfg.Chains, 4)
	assert.NoError(t, ValidateChains(cfg.Chains))
}

func TestEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("UPSCALE_MODELS_DIR=/from/file\nUPSCALE_QUALITY=55\n"), 0o644))
	t.Setenv(EnvModelsDir, "/from/process")

	env, err := Env(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, env))
	assert.Equal(t, "/from/process", cfg.ModelsDir)
	assert.Equal(t, 55, cfg.Quality)

	assert.Error(t, ApplyEnv(&cfg, map[string]string{EnvQuality: "high"}))
}

func TestValidateChains_TileTokens(t *testing.T) {
	for _, tok := range []string{"", "512", "Auto (Estimate)", "Maximum", "No Tiling", "-5"} {
		assert.NoError(t, ValidateChains([]core.Chain{{Color: true, TileToken: tok}}), "token %q", tok)
	}
	for _, tok := range []string{"0", "000", " 0 "} {
		err := ValidateChains([]core.Chain{{Color: true, TileToken: tok}})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidChain), "token %q", tok)
	}
}
