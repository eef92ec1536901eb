// Package decoder provides format-specific image decoders backed by the
// standard library and golang.org/x/image.
package decoder

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

type decodeFunc func(io.Reader) (image.Image, error)

// decode runs fn over data and converts the result to a raster.  Every
// decoder in this package funnels through here.
func decode(ctx context.Context, op string, data []byte, fn decodeFunc) (*core.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrEmptyInput)
	}
	img, err := fn(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrInvalidDimensions)
	}
	return core.RasterFromImage(img), nil
}

// Auto decodes any format registered with the image package.  It is meant to
// be registered for core.FormatUnknown as the fallback decoder.
type Auto struct{}

func NewAuto() *Auto { return &Auto{} }

func (a *Auto) CanDecode(format core.Format) bool {
	switch format {
	case core.FormatUnknown, core.FormatPNG, core.FormatJPEG, core.FormatWebP, core.FormatBMP:
		return true
	}
	return false
}

func (a *Auto) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	return decode(ctx, "auto.decode", data, func(r io.Reader) (image.Image, error) {
		img, _, err := image.Decode(r)
		return img, err
	})
}

// Register installs the decoders of this package into reg.
func Register(reg core.Registry) {
	reg.RegisterDecoder(core.FormatPNG, NewPNG())
	reg.RegisterDecoder(core.FormatJPEG, NewJPEG())
	reg.RegisterDecoder(core.FormatWebP, NewWebP())
	reg.RegisterDecoder(core.FormatBMP, NewBMP())
	reg.RegisterDecoder(core.FormatUnknown, NewAuto())
}
