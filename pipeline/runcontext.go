package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Skryldev/batch-upscale/config"
	"github.com/Skryldev/batch-upscale/core"
	"github.com/Skryldev/batch-upscale/hooks"
	"github.com/Skryldev/batch-upscale/models"
)

// RunContext holds everything one batch needs: configuration, codecs, the
// model cache, the inference backend and the observers.  It is built once
// per batch and shared by the stages and nested archive runs.
type RunContext struct {
	ID       uuid.UUID
	Config   config.Config
	Registry core.Registry
	Models   *models.Cache
	Upscaler core.Upscaler

	Logger     core.Logger
	Metrics    core.MetricsCollector
	Hooks      []core.Hook
	Controller *Controller
	Progress   core.ProgressReporter

	loader   core.ModelLoader
	template *Pipeline

	// inflight bounds the images decoded or held across all stages.
	inflight chan struct{}
	held     atomic.Int64
	peak     atomic.Int64
}

// Option configures a RunContext.
type Option func(*RunContext)

// WithLogger sets the structured logger.
func WithLogger(l core.Logger) Option { return func(rc *RunContext) { rc.Logger = l } }

// WithMetrics sets the metrics collector; a MetricsHook feeding it is added.
func WithMetrics(m core.MetricsCollector) Option { return func(rc *RunContext) { rc.Metrics = m } }

// WithHook adds a step observer.
func WithHook(h core.Hook) Option { return func(rc *RunContext) { rc.Hooks = append(rc.Hooks, h) } }

// WithUpscaler sets the inference backend, overriding Config.UpscalerCommand.
func WithUpscaler(u core.Upscaler) Option { return func(rc *RunContext) { rc.Upscaler = u } }

// WithModelLoader sets the loader used by the model cache.
func WithModelLoader(l core.ModelLoader) Option { return func(rc *RunContext) { rc.loader = l } }

// WithController shares an abort/pause controller with the caller.
func WithController(c *Controller) Option { return func(rc *RunContext) { rc.Controller = c } }

// WithProgress sets the receiver of progress tokens.
func WithProgress(p core.ProgressReporter) Option { return func(rc *RunContext) { rc.Progress = p } }

// NewRunContext builds the context of one batch.  When no upscaler is given
// and cfg.UpscalerCommand is set, a command upscaler is created from it.
func NewRunContext(cfg config.Config, reg core.Registry, opts ...Option) (*RunContext, error) {
	rc := &RunContext{
		ID:       uuid.New(),
		Config:   cfg,
		Registry: reg,
		loader:   models.FileLoader{},
	}
	for _, o := range opts {
		o(rc)
	}

	if rc.Logger == nil {
		rc.Logger = hooks.NopLogger{}
	}
	if rc.Controller == nil {
		rc.Controller = NewController()
	}
	if rc.Metrics != nil {
		rc.Hooks = append(rc.Hooks, hooks.NewMetricsHook(rc.Metrics))
	}
	if rc.Upscaler == nil && cfg.UpscalerCommand != "" {
		u, err := models.NewCommandUpscaler(cfg.UpscalerCommand)
		if err != nil {
			return nil, err
		}
		rc.Upscaler = u
	}
	rc.Models = models.NewCache(cfg.ModelsDir, rc.loader)

	rc.template = New().WithRetry(cfg.MaxRetries, cfg.RetryDelay)
	for _, h := range rc.Hooks {
		rc.template.AddHook(h)
	}

	n := cfg.MaxInFlight
	if n < 1 {
		n = 1
	}
	rc.inflight = make(chan struct{}, n)
	return rc, nil
}

// PeakInFlight returns the largest number of images held at once so far.
func (rc *RunContext) PeakInFlight() int64 { return rc.peak.Load() }

// acquire takes an in-flight slot, blocking until one is free.
func (rc *RunContext) acquire(ctx context.Context) error {
	select {
	case rc.inflight <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	n := rc.held.Add(1)
	for {
		p := rc.peak.Load()
		if n <= p || rc.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

func (rc *RunContext) release() {
	rc.held.Add(-1)
	<-rc.inflight
}

func (rc *RunContext) report(key, value string) {
	if rc.Progress != nil {
		rc.Progress.Report(key, value)
	}
}

func (rc *RunContext) base() *Pipeline { return rc.template.Clone() }

// Prepare returns the producer steps: decode, classify, grayscale collapse,
// pre-upscale resize, levels and model resolution.
func (rc *RunContext) Prepare() *Pipeline {
	c := rc.Config
	return rc.base().Use(
		&DecodeStep{Registry: rc.Registry},
		&ClassifyStep{Geometry: c.Geometry, Chains: c.Chains, Threshold: c.GrayscaleThreshold},
		&GrayscaleStep{},
		&PreResizeStep{},
		&LevelsStep{Logger: rc.Logger},
		&ModelStep{Models: rc.Models, Upscaler: rc.Upscaler, Strict: c.StrictModels, Logger: rc.Logger},
	)
}

// Infer returns the inference stage steps.
func (rc *RunContext) Infer() *Pipeline {
	return rc.base().Use(&UpscaleStep{Upscaler: rc.Upscaler, Device: rc.Config.Device})
}

// Finalize returns the sink stage steps: final resize and encode.
func (rc *RunContext) Finalize() *Pipeline {
	c := rc.Config
	return rc.base().Use(
		&FinalizeStep{Geometry: c.Geometry},
		&EncodeStep{
			Registry: rc.Registry,
			Format:   c.Format,
			Options:  core.EncodeOptions{Quality: c.Quality, Lossless: c.Lossless},
		},
	)
}
