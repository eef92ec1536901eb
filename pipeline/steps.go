package pipeline

import (
	"context"
	"fmt"

	"github.com/Skryldev/batch-upscale/chain"
	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/levels"
	"github.com/Skryldev/batch-upscale/models"
	"github.com/Skryldev/batch-upscale/resize"
)

func withRaster(img *core.ImageData, r *core.Raster) *core.ImageData {
	out := *img
	out.Raster = r
	out.Tensor = nil
	out.Meta.Width = r.Width
	out.Meta.Height = r.Height
	out.Meta.Channels = r.Channels
	out.Meta.ColorSpace = core.ColorSpaceFor(r.Channels)
	return &out
}

func withTensor(img *core.ImageData, t *core.Tensor) *core.ImageData {
	out := *img
	out.Tensor = t
	out.Raster = nil
	out.Meta.Width = t.Width
	out.Meta.Height = t.Height
	out.Meta.Channels = t.Channels
	out.Meta.ColorSpace = core.ColorSpaceFor(t.Channels)
	return &out
}

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes the raw bytes in img.Data into an 8-bit raster.  The raw
// bytes are kept so a failed item can still be copied through.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Raster != nil {
		return img, nil // already decoded
	}
	r, err := core.Decode(ctx, s.Registry, img.Format, img.Data)
	if err != nil {
		return nil, err
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrInvalidDimensions)
	}

	out := withRaster(img, r)
	out.Meta.OriginalWidth = r.Width
	out.Meta.OriginalHeight = r.Height
	out.Meta.SizeBytes = int64(len(img.Data))
	return out, nil
}

// ── Classify ──────────────────────────────────────────────────────────────────

// ClassifyStep detects grayscale content and selects the first matching chain.
type ClassifyStep struct {
	Geometry  core.Geometry
	Chains    []core.Chain
	Threshold int
}

func (s *ClassifyStep) Name() string { return "classify" }

func (s *ClassifyStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Raster == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	d := chain.Select(img.Raster, s.Geometry, s.Chains, s.Threshold)

	out := *img
	out.Chain = d.Chain
	out.Meta.Grayscale = d.Grayscale
	out.Meta.OriginalWidth = d.OriginalWidth
	out.Meta.OriginalHeight = d.OriginalHeight
	return &out, nil
}

// ── Grayscale ─────────────────────────────────────────────────────────────────

// GrayscaleStep collapses images classified as grayscale to one channel.
type GrayscaleStep struct{}

func (s *GrayscaleStep) Name() string { return "grayscale" }

func (s *GrayscaleStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if !img.Meta.Grayscale || img.Raster.Channels == 1 {
		return img, nil
	}
	return withRaster(img, img.Raster.ToGray()), nil
}

// ── Pre-upscale resize ────────────────────────────────────────────────────────

// PreResizeStep applies the matched chain's resize before inference.  It
// always uses the standard filter; the dot-gain path is for the final
// downscale only.
type PreResizeStep struct{}

func (s *PreResizeStep) Name() string { return "pre_resize" }

func (s *PreResizeStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Chain == nil {
		return img, nil
	}
	w, h, ok := img.Chain.PreResizeSize(img.Raster.Width, img.Raster.Height)
	if !ok || (w == img.Raster.Width && h == img.Raster.Height) {
		return img, nil
	}
	r, err := resize.Standard(img.Raster, w, h)
	if err != nil {
		return nil, err
	}
	return withRaster(img, r), nil
}

// ── Levels ────────────────────────────────────────────────────────────────────

// LevelsStep normalises the raster into a tensor, stretching the black and
// white points first when the chain asks for it on a grayscale image.
type LevelsStep struct {
	Logger core.Logger
}

func (s *LevelsStep) Name() string { return "levels" }

func (s *LevelsStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Chain != nil && img.Chain.AutoLevels && img.Meta.Grayscale {
		t, black, white := levels.Apply(img.Raster)
		s.Logger.Debug("levels.stretch", "name", img.Name, "black", black, "white", white)
		return withTensor(img, t), nil
	}
	return withTensor(img, img.Raster.Normalize()), nil
}

// ── Model ─────────────────────────────────────────────────────────────────────

// ModelStep resolves the chain's model and tile policy.  A model that cannot
// be used is skipped for the item with a warning unless Strict is set.
type ModelStep struct {
	Models   *models.Cache
	Upscaler core.Upscaler
	Strict   bool
	Logger   core.Logger
}

func (s *ModelStep) Name() string { return "model" }

func (s *ModelStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Chain == nil || !img.Chain.HasModel() {
		return img, nil
	}
	if s.Upscaler == nil {
		return s.skip(img, apperrors.New(apperrors.CategoryConfig, s.Name(), apperrors.ErrNoUpscaler))
	}
	m, err := s.Models.Get(ctx, img.Chain.ModelPath)
	if err != nil {
		return s.skip(img, err)
	}

	out := *img
	out.Model = m
	out.Tile = models.ParseTileSize(img.Chain.TileToken)
	return &out, nil
}

func (s *ModelStep) skip(img *core.ImageData, err error) (*core.ImageData, error) {
	if s.Strict {
		return nil, err
	}
	s.Logger.Warn("model.skipped", "name", img.Name, "model", img.Chain.ModelPath, "error", err.Error())
	return img, nil
}

// ── Upscale ───────────────────────────────────────────────────────────────────

// UpscaleStep runs inference when a model was resolved.  Output of a
// grayscale item is collapsed back to one channel.
type UpscaleStep struct {
	Upscaler core.Upscaler
	Device   core.DeviceOptions
}

func (s *UpscaleStep) Name() string { return "upscale" }

func (s *UpscaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Model == nil {
		return img, nil
	}
	if img.Tensor == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	t, err := s.Upscaler.Upscale(ctx, img.Model, img.Tensor, img.Tile, s.Device)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryModel, s.Name(), err)
	}
	if img.Meta.Grayscale && t.Channels > 1 {
		t = t.ToGray()
	}
	return withTensor(img, t), nil
}

// ── Finalize ──────────────────────────────────────────────────────────────────

// FinalizeStep quantises the tensor and resizes the result to the target
// geometry, computed from the size the image was decoded at.
type FinalizeStep struct {
	Geometry core.Geometry
}

func (s *FinalizeStep) Name() string { return "finalize" }

func (s *FinalizeStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	r := img.Raster
	if img.Tensor != nil {
		r = img.Tensor.Quantize()
	}
	if r == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	w, h, ok := s.Geometry.FinalSize(r.Width, r.Height, img.Meta.OriginalWidth, img.Meta.OriginalHeight)
	if ok {
		resized, err := resize.ImageResize(r, w, h, img.Meta.Grayscale)
		if err != nil {
			return nil, err
		}
		r = resized
	}
	return withRaster(img, r), nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the raster to the output format using the registry.
type EncodeStep struct {
	Registry core.Registry
	Format   core.Format
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(s.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, s.Format))
	}
	if img.Raster == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(), apperrors.ErrEmptyInput)
	}

	data, err := enc.Encode(ctx, img.Raster, s.Options)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Format = s.Format
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}
