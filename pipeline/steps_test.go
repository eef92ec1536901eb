package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/hooks"
	"github.com/Skryldev/batch-upscale/models"
	"github.com/Skryldev/batch-upscale/resize"
)

func grayRaster(w, h int, lo, hi uint8) *core.Raster {
	r := core.NewRaster(w, h, 3)
	for i := 0; i < w*h; i++ {
		v := uint8(int(lo) + i%(int(hi)-int(lo)+1))
		r.Pix[i*3], r.Pix[i*3+1], r.Pix[i*3+2] = v, v, v
	}
	return r
}

func decoded(r *core.Raster) *core.ImageData {
	return withRaster(&core.ImageData{Name: "x.png"}, r)
}

func TestPrepareSteps_GrayscaleWithLevels(t *testing.T) {
	ctx := context.Background()
	chains := []core.Chain{{Grayscale: true, AutoLevels: true}}
	img := decoded(grayRaster(10, 8, 40, 200))

	p := New().Use(
		&ClassifyStep{Geometry: core.Geometry{Scale: 2}, Chains: chains, Threshold: 12},
		&GrayscaleStep{},
		&PreResizeStep{},
		&LevelsStep{Logger: hooks.NopLogger{}},
	)
	out, timings, err := p.Run(ctx, img)
	require.NoError(t, err)
	assert.Len(t, timings, 4)

	assert.True(t, out.Meta.Grayscale)
	require.NotNil(t, out.Chain)
	require.NotNil(t, out.Tensor)
	assert.Nil(t, out.Raster)
	assert.Equal(t, 1, out.Tensor.Channels)
	assert.Equal(t, 10, out.Meta.OriginalWidth)

	// Stretched: the darkest pixel maps to 0 and the brightest to 1.
	lo, hi := float32(1), float32(0)
	for _, v := range out.Tensor.Data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	assert.InDelta(t, 0, lo, 0.01)
	assert.InDelta(t, 1, hi, 0.01)
}

func TestPrepareSteps_PreResizeByFactor(t *testing.T) {
	ctx := context.Background()
	chains := []core.Chain{{Color: true, Grayscale: true, ResizeFactor: 50}}

	p := New().Use(
		&ClassifyStep{Geometry: core.Geometry{Scale: 2}, Chains: chains},
		&GrayscaleStep{},
		&PreResizeStep{},
	)
	out, _, err := p.Run(ctx, decoded(grayRaster(40, 20, 0, 255)))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Meta.Width)
	assert.Equal(t, 10, out.Meta.Height)
	assert.Equal(t, 40, out.Meta.OriginalWidth, "original size survives the pre-resize")
}

func TestPreResizeStep_GrayUsesStandardFilter(t *testing.T) {
	src := grayRaster(64, 64, 0, 255)
	for i := 0; i < 64*64; i++ {
		src.Pix[i*3] = uint8((i * 37) % 256)
		src.Pix[i*3+1], src.Pix[i*3+2] = src.Pix[i*3], src.Pix[i*3]
	}
	chains := []core.Chain{{Grayscale: true, Color: true, ResizeFactor: 50}}

	p := New().Use(
		&ClassifyStep{Geometry: core.Geometry{Scale: 2}, Chains: chains, Threshold: 12},
		&GrayscaleStep{},
		&PreResizeStep{},
	)
	out, _, err := p.Run(context.Background(), decoded(src))
	require.NoError(t, err)
	require.True(t, out.Meta.Grayscale)

	collapsed, _, err := New().Use(
		&ClassifyStep{Geometry: core.Geometry{Scale: 2}, Chains: chains, Threshold: 12},
		&GrayscaleStep{},
	).Run(context.Background(), decoded(src))
	require.NoError(t, err)
	want, err := resize.Standard(collapsed.Raster, 32, 32)
	require.NoError(t, err)

	assert.Equal(t, want.Width, out.Raster.Width)
	assert.Equal(t, want.Channels, out.Raster.Channels)
	assert.Equal(t, want.Pix, out.Raster.Pix)
}

func TestFinalizeStep_ScalesFromOriginalSize(t *testing.T) {
	img := decoded(core.NewRaster(30, 20, 3))
	img.Meta.OriginalWidth, img.Meta.OriginalHeight = 60, 40
	img = withTensor(img, img.Raster.Normalize())

	out, err := (&FinalizeStep{Geometry: core.Geometry{Scale: 2}}).Execute(context.Background(), img)
	require.NoError(t, err)
	require.NotNil(t, out.Raster)
	assert.Equal(t, 120, out.Raster.Width)
	assert.Equal(t, 80, out.Raster.Height)
	assert.Nil(t, out.Tensor)
}

func TestFinalizeStep_HeightTarget(t *testing.T) {
	img := decoded(core.NewRaster(50, 100, 1))
	img.Meta.OriginalWidth, img.Meta.OriginalHeight = 50, 100

	out, err := (&FinalizeStep{Geometry: core.Geometry{Height: 100}}).Execute(context.Background(), img)
	require.NoError(t, err)
	assert.Same(t, img.Raster, out.Raster, "already at target height")
}

func TestModelStep(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2x.pth"), []byte("w"))
	cache := models.NewCache(dir, models.FileLoader{})
	ctx := context.Background()

	withChain := func(model string) *core.ImageData {
		img := decoded(core.NewRaster(4, 4, 3))
		img.Chain = &core.Chain{Color: true, ModelPath: model, TileToken: "512"}
		return img
	}

	t.Run("resolves model and tile", func(t *testing.T) {
		step := &ModelStep{Models: cache, Upscaler: &slowUpscaler{}, Logger: hooks.NopLogger{}}
		out, err := step.Execute(ctx, withChain("2x.pth"))
		require.NoError(t, err)
		require.NotNil(t, out.Model)
		assert.Equal(t, core.TileSize(512), out.Tile)
	})

	t.Run("no model", func(t *testing.T) {
		step := &ModelStep{Models: cache, Logger: hooks.NopLogger{}}
		in := withChain(core.NoModel)
		out, err := step.Execute(ctx, in)
		require.NoError(t, err)
		assert.Same(t, in, out)
	})

	t.Run("missing upscaler", func(t *testing.T) {
		step := &ModelStep{Models: cache, Strict: true, Logger: hooks.NopLogger{}}
		_, err := step.Execute(ctx, withChain("2x.pth"))
		assert.True(t, errors.Is(err, apperrors.ErrNoUpscaler))

		step.Strict = false
		out, err := step.Execute(ctx, withChain("2x.pth"))
		require.NoError(t, err)
		assert.Nil(t, out.Model)
	})
}

type doublingUpscaler struct{}

func (doublingUpscaler) Upscale(_ context.Context, _ core.Model, t *core.Tensor, _ core.TileSize, _ core.DeviceOptions) (*core.Tensor, error) {
	out := core.NewTensor(t.Width*2, t.Height*2, 3)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			v := t.Data[(y/2*t.Width+x/2)*t.Channels]
			i := (y*out.Width + x) * 3
			out.Data[i], out.Data[i+1], out.Data[i+2] = v, v, v
		}
	}
	return out, nil
}

func TestUpscaleStep_GrayOutputStaysSingleChannel(t *testing.T) {
	img := decoded(core.NewRaster(3, 2, 1))
	img.Meta.Grayscale = true
	img = withTensor(img, img.Raster.Normalize())
	img.Model = &models.FileModel{}

	out, err := (&UpscaleStep{Upscaler: doublingUpscaler{}}).Execute(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Tensor.Channels)
	assert.Equal(t, 6, out.Meta.Width)
	assert.Equal(t, 4, out.Meta.Height)
}

func TestEncodeStep_UnknownFormat(t *testing.T) {
	step := &EncodeStep{Registry: core.NewRegistry(), Format: core.FormatAVIF}
	_, err := step.Execute(context.Background(), decoded(core.NewRaster(2, 2, 3)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedFormat))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryEncode))
}
