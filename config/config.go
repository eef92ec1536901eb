package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Skryldev/batch-upscale/core"
)

// Mode selects how the input path is addressed.
type Mode string

const (
	ModeFile    Mode = "file"    // a single image or archive
	ModeFolder  Mode = "folder"  // a directory tree
	ModeArchive Mode = "archive" // a zip or rar container
)

// Config is the configuration of one batch.  Start from Default() and
// override what you need.
type Config struct {
	Mode      Mode
	InputPath string

	// Output.
	OutputFolder     string
	OutputFilename   string // template; %filename% is the input stem
	Overwrite        bool
	ArchiveExtension string // extension of output containers, default "cbz"

	// Folder mode switches.
	UpscaleImages   bool
	UpscaleArchives bool

	// Encoding.
	Format   core.Format
	Quality  int // 0-100 for lossy formats
	Lossless bool

	// Target size and classification.
	Geometry           core.Geometry
	GrayscaleThreshold int

	// Chain rules, in priority order.
	Chains []core.Chain

	// Models and inference.
	ModelsDir       string
	StrictModels    bool // a missing model file aborts the run
	UpscalerCommand string
	Device          core.DeviceOptions

	// Concurrency: maximum images decoded or held across all stages.
	MaxInFlight int

	// Code page for zip entry names stored without the UTF-8 flag.
	LegacyFilenameEncoding string

	// Retry for transient step failures.
	MaxRetries int
	RetryDelay time.Duration

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// Logging.
	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "json" or "text"
}

// Default returns a Config populated with the defaults of the desktop tool.
func Default() Config {
	return Config{
		Mode:               ModeFolder,
		OutputFolder:       "out",
		OutputFilename:     "%filename%",
		ArchiveExtension:   "cbz",
		UpscaleImages:      true,
		UpscaleArchives:    true,
		Format:             core.FormatPNG,
		Quality:            80,
		Geometry:           core.Geometry{Scale: 2},
		GrayscaleThreshold: 12,
		ModelsDir:          "models",
		MaxInFlight:        2,
		MaxRetries:         2,
		RetryDelay:         200 * time.Millisecond,
		ChunkSize:          32 * 1024,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	switch c.Mode {
	case ModeFile, ModeFolder, ModeArchive:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.InputPath == "" {
		return errors.New("config: InputPath is required")
	}
	if c.OutputFolder == "" {
		return errors.New("config: OutputFolder is required")
	}
	if !isOutputFormat(c.Format) {
		return fmt.Errorf("config: unsupported output format %q", c.Format)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return errors.New("config: Quality must be between 0 and 100")
	}
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.GrayscaleThreshold < 0 {
		return errors.New("config: GrayscaleThreshold must not be negative")
	}
	if c.MaxInFlight < 1 {
		return errors.New("config: MaxInFlight must be at least 1")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.ArchiveExtension == "" {
		return errors.New("config: ArchiveExtension is required")
	}
	return ValidateChains(c.Chains)
}

func isOutputFormat(f core.Format) bool {
	for _, o := range core.OutputFormats {
		if o == f {
			return true
		}
	}
	return false
}
