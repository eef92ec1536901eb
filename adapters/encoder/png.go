// Package encoder provides format-specific image encoders.
package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// check rejects cancelled contexts and empty rasters.
func check(ctx context.Context, op string, r *core.Raster) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if r == nil || len(r.Pix) == 0 {
		return apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	return nil
}

// PNG encodes rasters to PNG.  Single-channel rasters are written as 8-bit
// grayscale.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, r *core.Raster, opts core.EncodeOptions) ([]byte, error) {
	if err := check(ctx, "png.encode", r); err != nil {
		return nil, err
	}

	enc := &png.Encoder{}
	if opts.Lossless {
		enc.CompressionLevel = png.BestCompression
	} else {
		enc.CompressionLevel = png.DefaultCompression
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, r.Image()); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}

// Register installs the encoders of this package into reg.
func Register(reg core.Registry, defaultQuality int) {
	reg.RegisterEncoder(core.FormatPNG, NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, NewJPEG(defaultQuality))
	reg.RegisterEncoder(core.FormatWebP, NewWebP(defaultQuality))
}
