package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// flakyStep fails transiently until it has been called failures+1 times.
type flakyStep struct {
	name     string
	failures int
	calls    int
	fatal    error
}

func (s *flakyStep) Name() string { return s.name }

func (s *flakyStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	s.calls++
	if s.fatal != nil {
		return nil, s.fatal
	}
	if s.calls <= s.failures {
		return nil, apperrors.Transient(s.name, errors.New("busy"))
	}
	out := *img
	out.Name = img.Name + "+" + s.name
	return &out, nil
}

type stepRecorder struct {
	before, after []string
	errs          []error
}

func (r *stepRecorder) BeforeStep(_ context.Context, step string, _ *core.ImageData) {
	r.before = append(r.before, step)
}

func (r *stepRecorder) AfterStep(_ context.Context, step string, _ *core.ImageData, _ time.Duration, err error) {
	r.after = append(r.after, step)
	r.errs = append(r.errs, err)
}

func TestPipeline_RunsStepsInOrder(t *testing.T) {
	rec := &stepRecorder{}
	p := New().Use(&flakyStep{name: "a"}, &flakyStep{name: "b"}).AddHook(rec)

	out, timings, err := p.Run(context.Background(), &core.ImageData{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x+a+b", out.Name)
	assert.Len(t, timings, 2)
	assert.Equal(t, []string{"a", "b"}, rec.before)
	assert.Equal(t, []string{"a", "b"}, rec.after)
}

func TestPipeline_RetriesTransientFailures(t *testing.T) {
	step := &flakyStep{name: "model", failures: 2}
	rec := &stepRecorder{}
	p := New().Use(step).AddHook(rec).WithRetry(2, 0)

	_, _, err := p.Run(context.Background(), &core.ImageData{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, 3, step.calls)
	// Hooks see the step once, with the final outcome.
	assert.Equal(t, []string{"model"}, rec.after)
	assert.Nil(t, rec.errs[0])
}

func TestPipeline_StepErrorNamesFailingStep(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		step := &flakyStep{name: "upscale", failures: 5}
		_, _, err := New().Use(&flakyStep{name: "decode"}, step).WithRetry(1, 0).
			Run(context.Background(), &core.ImageData{})
		require.Error(t, err)

		var se *StepError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "upscale", se.Step)
		assert.Equal(t, 2, se.Attempts)
		assert.True(t, apperrors.IsRetryable(err))
		assert.Contains(t, err.Error(), "after 2 attempts")
	})

	t.Run("fatal error is not retried", func(t *testing.T) {
		step := &flakyStep{name: "encode", fatal: apperrors.New(apperrors.CategoryEncode, "encode", apperrors.ErrUnsupportedFormat)}
		_, _, err := New().Use(step).WithRetry(3, 0).Run(context.Background(), &core.ImageData{})
		assert.Equal(t, 1, step.calls)
		assert.Equal(t, "encode", FailedStep(err))
		assert.True(t, errors.Is(err, apperrors.ErrUnsupportedFormat))
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
	})

	t.Run("cancelled before a step", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		step := &flakyStep{name: "classify"}
		_, _, err := New().Use(step).Run(ctx, &core.ImageData{})
		assert.Zero(t, step.calls)
		assert.Equal(t, "classify", FailedStep(err))
		assert.True(t, errors.Is(err, context.Canceled))
	})

	assert.Empty(t, FailedStep(errors.New("plain")))
}

func TestPipeline_RetryPauseHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	step := &flakyStep{name: "model", failures: 10}
	p := New().Use(step).WithRetry(5, time.Hour)

	done := make(chan error, 1)
	go func() {
		_, _, err := p.Run(ctx, &core.ImageData{})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, "model", FailedStep(err))
	case <-time.After(5 * time.Second):
		t.Fatal("retry pause ignored cancellation")
	}
}

func TestPipeline_CloneIsIndependent(t *testing.T) {
	base := New().Use(&flakyStep{name: "a"})
	c := base.Clone().Use(&flakyStep{name: "b"})

	out, _, err := base.Run(context.Background(), &core.ImageData{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x+a", out.Name)

	out, _, err = c.Run(context.Background(), &core.ImageData{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x+a+b", out.Name)
}
