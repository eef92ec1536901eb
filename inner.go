package batchupscale

import "github.com/Skryldev/batch-upscale/pipeline"

// RunContext builds the per-batch context a Run uses.  It exposes the model
// cache and step pipelines for advanced use; prefer Run for normal usage.
func (p *Processor) RunContext() (*pipeline.RunContext, error) {
	opts := append([]pipeline.Option{pipeline.WithController(p.controller)}, p.opts...)
	return pipeline.NewRunContext(p.cfg, p.reg, opts...)
}
