// Command upscale runs a batch from a saved settings document or from a few
// flags applied to the built-in workflow.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	batchupscale "github.com/Skryldev/batch-upscale"
	"github.com/Skryldev/batch-upscale/adapters/vips"
	"github.com/Skryldev/batch-upscale/config"
	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/hooks"
)

type options struct {
	settings   string
	filePath   string
	folderPath string
	output     string
	modelsDir  string
	scale      int
	device     int

	format       string
	quality      int
	lossless     bool
	overwrite    bool
	threshold    int
	upscalerCmd  string
	strictModels bool
	maxInFlight  int
	legacyEnc    string
	logLevel     string
	logFormat    string
	envFiles     []string
	useVips      bool
	metrics      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "upscale (--settings FILE | -f FILE | -d FOLDER)",
		Short: "Batch upscale images, folders and comic archives",
		Long: strings.TrimSpace(`
Classifies every image, picks the first matching chain, optionally runs it
through a super-resolution model and resizes it to the target geometry.
Folders are mirrored; zip and rar containers are rewritten as zip.

Progress is printed to stdout as TOTALZIP= and PROGRESS= lines.
    `),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, o, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.settings, "settings", "", "Settings document exported by the desktop application")
	f.StringVarP(&o.filePath, "file-path", "f", "", "Upscale a single image or archive")
	f.StringVarP(&o.folderPath, "folder-path", "d", "", "Upscale a whole directory")
	f.StringVarP(&o.output, "output-folder-path", "o", "out", "Output directory")
	f.StringVarP(&o.modelsDir, "models-directory-path", "m", "models", "Directory holding the chain models")
	f.IntVarP(&o.scale, "upscale-factor", "u", 2, "Target scale, one of 1, 2, 3 or 4")
	f.IntVar(&o.device, "device-index", 0, "Inference device index")

	f.StringVar(&o.format, "format", "", "Output format: png, jpeg, webp or avif")
	f.IntVar(&o.quality, "quality", 0, "Lossy compression quality, 0-100")
	f.BoolVar(&o.lossless, "lossless", false, "Use lossless webp or avif")
	f.BoolVar(&o.overwrite, "overwrite", false, "Overwrite existing outputs")
	f.IntVar(&o.threshold, "threshold", 0, "Grayscale detection threshold")
	f.StringVar(&o.upscalerCmd, "upscaler-cmd", "", "Inference command line with {input} {output} {model} {tile} {device} {fp16}")
	f.BoolVar(&o.strictModels, "strict-models", false, "Fail when a chain model cannot be used")
	f.IntVar(&o.maxInFlight, "max-in-flight", 0, "Maximum images held in memory at once")
	f.StringVar(&o.legacyEnc, "legacy-encoding", "", "Code page of zip entry names without the UTF-8 flag")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "json or text")
	f.StringSliceVar(&o.envFiles, "env-file", []string{".env"}, "dotenv files with UPSCALE_* overrides")
	f.BoolVar(&o.useVips, "vips", false, "Use libvips for decoding and encoding (required for avif)")
	f.BoolVar(&o.metrics, "metrics", false, "Log per-step timings when the run ends")

	cmd.MarkFlagsMutuallyExclusive("settings", "file-path", "folder-path")
	cmd.MarkFlagsOneRequired("settings", "file-path", "folder-path")
	return cmd
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if errors.Is(err, apperrors.ErrAborted) {
			os.Exit(130)
		}
		log.Fatalf("upscale: %v", err)
	}
}

// loadConfig builds the batch configuration: settings document or built-in
// workflow, then dotenv and environment, then explicitly set flags.
func loadConfig(cmd *cobra.Command, o options) (config.Config, error) {
	var s *config.Settings
	if o.settings != "" {
		var err error
		if s, err = config.LoadSettings(o.settings); err != nil {
			return config.Config{}, err
		}
	} else {
		if o.scale < 1 || o.scale > 4 {
			return config.Config{}, fmt.Errorf("--upscale-factor must be 1, 2, 3 or 4, got %d", o.scale)
		}
		s = config.DefaultSettings()
		s.ModelsDirectory = o.modelsDir
		s.SelectedDeviceIndex = o.device
		wf, err := s.Workflow()
		if err != nil {
			return config.Config{}, err
		}
		wf.OutputFolder = o.output
		wf.UpscaleScaleFactor = float64(o.scale)
		if o.filePath != "" {
			wf.SelectedTabIndex = 0
			wf.InputFilePath = o.filePath
		} else {
			wf.SelectedTabIndex = 1
			wf.InputFolderPath = o.folderPath
		}
	}

	cfg := config.Default()
	if err := s.Apply(&cfg); err != nil {
		return cfg, err
	}

	env, err := config.Env(o.envFiles...)
	if err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg, env); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Format = core.ParseFormat(strings.ToLower(o.format))
	}
	if f.Changed("quality") {
		cfg.Quality = o.quality
	}
	if f.Changed("lossless") {
		cfg.Lossless = o.lossless
	}
	if f.Changed("overwrite") {
		cfg.Overwrite = o.overwrite
	}
	if f.Changed("threshold") {
		cfg.GrayscaleThreshold = o.threshold
	}
	if f.Changed("upscaler-cmd") {
		cfg.UpscalerCommand = o.upscalerCmd
	}
	if f.Changed("strict-models") {
		cfg.StrictModels = o.strictModels
	}
	if f.Changed("max-in-flight") {
		cfg.MaxInFlight = o.maxInFlight
	}
	if f.Changed("legacy-encoding") {
		cfg.LegacyFilenameEncoding = o.legacyEnc
	}
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	return cfg, nil
}

func run(cmd *cobra.Command, o options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	logger, err := hooks.NewLogger(stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	metrics := hooks.NewInMemoryMetrics()
	opts := []batchupscale.Option{
		batchupscale.WithLogger(logger),
		batchupscale.WithHook(hooks.NewLoggingHook(logger)),
		batchupscale.WithProgress(hooks.NewProgress(stdout)),
	}
	if o.metrics {
		opts = append(opts, batchupscale.WithMetrics(metrics))
	}
	if o.useVips {
		backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: cfg.Quality})
		defer backend.Shutdown()
		opts = append(opts, batchupscale.WithVips(backend))
	}
	proc := batchupscale.New(cfg, opts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stop := handleSignals(proc, cancel, logger)
	defer stop()

	logger.Info("run.start",
		"mode", string(cfg.Mode),
		"input", cfg.InputPath,
		"output", cfg.OutputFolder,
		"format", string(cfg.Format),
		"chains", len(cfg.Chains),
	)
	start := time.Now()
	sum, err := proc.Run(ctx)
	fmt.Fprintf(stdout, "Elapsed time: %.2f seconds\n", time.Since(start).Seconds())
	fmt.Fprintln(stderr, sum.String())
	if o.metrics {
		logger.Info("run.metrics", "steps", metrics.Snapshot().String())
	}
	if sum.Errors != nil {
		logger.Warn("run.item_errors", "count", sum.ErrorCount(), "errors", sum.Errors.Error())
	}
	return err
}

// handleSignals aborts the run on the first interrupt and cancels it on the
// second.
func handleSignals(proc *batchupscale.Processor, cancel context.CancelFunc, logger core.Logger) func() {
	sig := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
		case <-done:
			return
		}
		logger.Warn("run.abort_requested", "hint", "interrupt again to cancel immediately")
		proc.Abort()
		select {
		case <-sig:
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}
