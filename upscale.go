// Package batchupscale batch-converts images found in files, folders and
// zip/rar containers: each image is classified, matched to a chain rule,
// optionally run through a super-resolution model and resized to the target
// geometry, then written to a mirrored output file, folder or container.
package batchupscale

import (
	"context"
	"fmt"

	"github.com/Skryldev/batch-upscale/adapters/decoder"
	"github.com/Skryldev/batch-upscale/adapters/encoder"
	"github.com/Skryldev/batch-upscale/adapters/vips"
	"github.com/Skryldev/batch-upscale/config"
	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/pipeline"
	"github.com/Skryldev/batch-upscale/source"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	AVIF = core.FormatAVIF
)

// DefaultConfig returns the default batch configuration.
func DefaultConfig() config.Config { return config.Default() }

// Processor is the primary entry point.
type Processor struct {
	cfg        config.Config
	reg        *core.DefaultRegistry
	controller *pipeline.Controller
	opts       []pipeline.Option
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithLogger(l)) }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m core.MetricsCollector) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithMetrics(m)) }
}

// WithHook registers an observer for pipeline step events.
func WithHook(h core.Hook) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithHook(h)) }
}

// WithUpscaler sets the inference backend.  Without it the configured
// upscaler command is used, and without that chain models are skipped.
func WithUpscaler(u core.Upscaler) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithUpscaler(u)) }
}

// WithModelLoader sets the loader for chain model files.
func WithModelLoader(l core.ModelLoader) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithModelLoader(l)) }
}

// WithProgress sets the receiver of progress tokens.
func WithProgress(r core.ProgressReporter) Option {
	return func(p *Processor) { p.opts = append(p.opts, pipeline.WithProgress(r)) }
}

// WithVips makes the libvips backend the codec for every format it supports.
func WithVips(b *vips.Backend) Option {
	return func(p *Processor) { vips.RegisterVipsBackend(p.reg, b) }
}

// New creates a Processor with the standard library and x/image decoders and
// the PNG, JPEG and WebP encoders registered.
func New(cfg config.Config, opts ...Option) *Processor {
	reg := core.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg, cfg.Quality)

	p := &Processor{cfg: cfg, reg: reg, controller: pipeline.NewController()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the batch configuration.
func (p *Processor) Config() config.Config { return p.cfg }

// Registry returns the codec registry.
func (p *Processor) Registry() *core.DefaultRegistry { return p.reg }

// RegisterDecoder registers a custom decoder for the given format.
func (p *Processor) RegisterDecoder(f core.Format, d core.Decoder) { p.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (p *Processor) RegisterEncoder(f core.Format, e core.Encoder) { p.reg.RegisterEncoder(f, e) }

// Abort stops the run after the items already in flight.
func (p *Processor) Abort() { p.controller.Abort() }

// Pause stalls the run before its next entry; Resume continues it.
func (p *Processor) Pause()  { p.controller.Pause() }
func (p *Processor) Resume() { p.controller.Resume() }

// Run executes the configured batch.  Configuration errors are returned
// before any entry is read.
func (p *Processor) Run(ctx context.Context) (pipeline.Summary, error) {
	if err := config.Validate(p.cfg); err != nil {
		return pipeline.Summary{}, apperrors.New(apperrors.CategoryConfig, "batchupscale.run", err)
	}
	if _, ok := p.reg.EncoderFor(p.cfg.Format); !ok {
		return pipeline.Summary{}, apperrors.New(apperrors.CategoryConfig, "batchupscale.run",
			fmt.Errorf("%w: no encoder for %s (register the vips backend)", apperrors.ErrUnsupportedFormat, p.cfg.Format))
	}
	rc, err := p.RunContext()
	if err != nil {
		return pipeline.Summary{}, err
	}
	return pipeline.NewOrchestrator(rc).Execute(ctx)
}

// RunSource processes src into sink with the configured chains and output
// format, bypassing the configured input and output paths.
func (p *Processor) RunSource(ctx context.Context, src source.Enumerator, sink source.Sink) (pipeline.Summary, error) {
	rc, err := p.RunContext()
	if err != nil {
		return pipeline.Summary{}, err
	}
	return pipeline.NewOrchestrator(rc).Run(ctx, src, sink)
}
