// Package pipeline runs a batch: per-item steps with hooks and retries, and
// the three-stage orchestrator that moves items from a source to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// StepError names the step an item failed in.  It wraps the step's own
// error, so category and sentinel checks see through it.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("step %s (after %d attempts): %v", e.Step, e.Attempts, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the name of the step err came from, or "" when err did
// not come out of a Pipeline.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Pipeline executes a sequence of Steps over one image with hook and retry
// support.  A Pipeline is not safe for concurrent use; each stage clones its
// own from the run template.
type Pipeline struct {
	steps      []core.Step
	hooks      []core.Hook
	maxRetries int
	retryDelay time.Duration
}

// New returns an empty Pipeline.
func New() *Pipeline { return &Pipeline{} }

// Use appends steps.  Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Step) *Pipeline {
	p.steps = append(p.steps, s...)
	return p
}

// AddHook registers an observer.
func (p *Pipeline) AddHook(h core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// WithRetry sets how often a step reporting a transient failure is retried
// and the pause between attempts.
func (p *Pipeline) WithRetry(maxRetries int, delay time.Duration) *Pipeline {
	p.maxRetries = maxRetries
	p.retryDelay = delay
	return p
}

// Run executes the steps on img in order.  It returns the final ImageData and
// the time spent in each step.  A failure is returned as a *StepError.
func (p *Pipeline) Run(ctx context.Context, img *core.ImageData) (*core.ImageData, map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(p.steps))
	current := img

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, timings, &StepError{Step: step.Name(), Err: apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)}
		}

		result, elapsed, attempts, err := p.runStep(ctx, step, current)
		timings[step.Name()] = elapsed
		if err != nil {
			return nil, timings, &StepError{Step: step.Name(), Attempts: attempts, Err: err}
		}
		current = result
	}
	return current, timings, nil
}

// runStep executes a single step, calling hooks and retrying transient
// errors.  The elapsed time is that of the last attempt.
func (p *Pipeline) runStep(ctx context.Context, step core.Step, img *core.ImageData) (*core.ImageData, time.Duration, int, error) {
	p.callHooksBefore(ctx, step.Name(), img)

	var (
		result   *core.ImageData
		elapsed  time.Duration
		err      error
		attempts int
	)
	for attempts < p.maxRetries+1 {
		attempts++
		start := time.Now()
		result, err = step.Execute(ctx, img)
		elapsed = time.Since(start)

		if err == nil || !apperrors.IsRetryable(err) || attempts == p.maxRetries+1 {
			break
		}
		if werr := p.pause(ctx); werr != nil {
			err = apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), werr)
			break
		}
	}

	p.callHooksAfter(ctx, step.Name(), result, elapsed, err)
	return result, elapsed, attempts, err
}

func (p *Pipeline) pause(ctx context.Context) error {
	if p.retryDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, img *core.ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, img *core.ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

// Clone returns a copy sharing the steps and hooks, so a template can be
// extended by several stages.
func (p *Pipeline) Clone() *Pipeline {
	cp := &Pipeline{
		steps:      make([]core.Step, len(p.steps)),
		hooks:      make([]core.Hook, len(p.hooks)),
		maxRetries: p.maxRetries,
		retryDelay: p.retryDelay,
	}
	copy(cp.steps, p.steps)
	copy(cp.hooks, p.hooks)
	return cp
}
