package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Skryldev/batch-upscale/core"
)

// Environment keys read by ApplyEnv.
const (
	EnvModelsDir      = "UPSCALE_MODELS_DIR"
	EnvOutputDir      = "UPSCALE_OUTPUT_DIR"
	EnvFormat         = "UPSCALE_FORMAT"
	EnvQuality        = "UPSCALE_QUALITY"
	EnvUpscalerCmd    = "UPSCALE_UPSCALER_CMD"
	EnvLegacyEncoding = "UPSCALE_LEGACY_ENCODING"
	EnvMaxInFlight    = "UPSCALE_MAX_IN_FLIGHT"
	EnvLogLevel       = "UPSCALE_LOG_LEVEL"
	EnvLogFormat      = "UPSCALE_LOG_FORMAT"
)

// Env merges the given dotenv files with the process environment; process
// variables win.  Missing files are ignored.
func Env(files ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range m {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "UPSCALE_") {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides cfg with the UPSCALE_* keys present in env.
func ApplyEnv(cfg *Config, env map[string]string) error {
	if v, ok := env[EnvModelsDir]; ok && v != "" {
		cfg.ModelsDir = v
	}
	if v, ok := env[EnvOutputDir]; ok && v != "" {
		cfg.OutputFolder = v
	}
	if v, ok := env[EnvFormat]; ok && v != "" {
		cfg.Format = core.ParseFormat(strings.ToLower(v))
	}
	if v, ok := env[EnvQuality]; ok && v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvQuality, err)
		}
		cfg.Quality = q
	}
	if v, ok := env[EnvMaxInFlight]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxInFlight, err)
		}
		cfg.MaxInFlight = n
	}
	if v, ok := env[EnvUpscalerCmd]; ok {
		cfg.UpscalerCommand = v
	}
	if v, ok := env[EnvLegacyEncoding]; ok {
		cfg.LegacyFilenameEncoding = v
	}
	if v, ok := env[EnvLogLevel]; ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := env[EnvLogFormat]; ok && v != "" {
		cfg.LogFormat = v
	}
	return nil
}
