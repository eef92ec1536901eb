// Package resize implements the two resamplers used before and after
// inference: a Lanczos resize for any raster and a gamma-corrected resize for
// grayscale halftone content.
package resize

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// Blur radius limits for the gamma-corrected resize.
const (
	MinBlurRadius = 0.1
	MaxBlurRadius = 250
)

// Standard resizes r to w×h with a Lanczos filter.  The channel count is
// preserved, so a single channel raster stays single channel.
func Standard(r *core.Raster, w, h int) (*core.Raster, error) {
	if err := checkSize(r, w, h); err != nil {
		return nil, err
	}
	if r.Width == w && r.Height == h {
		return r, nil
	}
	dst := imaging.Resize(r.Image(), w, h, imaging.Lanczos)
	return fromNRGBA(dst, r.Channels), nil
}

// GammaCorrected resizes a grayscale raster to w×h without the tonal shift a
// plain resize causes on halftone scans.  The samples are blurred in
// proportion to the downscale, moved from dot-gain 20% into linear gamma,
// resampled with Catmull-Rom and moved back.  Multi-channel input is
// collapsed to gray first.
func GammaCorrected(r *core.Raster, w, h int) (*core.Raster, error) {
	if err := checkSize(r, w, h); err != nil {
		return nil, err
	}
	src := r.Gray()

	if radius, ok := BlurRadius(r.Height, h); ok {
		blurred := imaging.Blur(src, radius)
		src = grayFromNRGBA(blurred)
	}

	applyLUT(src.Pix, dotGainToLinear)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	applyLUT(dst.Pix, linearToDotGain)
	return core.RasterFromImage(dst), nil
}

// ImageResize dispatches to GammaCorrected for grayscale items and to
// Standard otherwise.
func ImageResize(r *core.Raster, w, h int, gray bool) (*core.Raster, error) {
	if gray {
		return GammaCorrected(r, w, h)
	}
	return Standard(r, w, h)
}

// BlurRadius returns the pre-filter radius for resizing from srcH to dstH
// rows.  It is (srcH/dstH - 1)/3.5 capped at MaxBlurRadius; ok is false when
// the radius falls below MinBlurRadius and no blur should be applied.
func BlurRadius(srcH, dstH int) (radius float64, ok bool) {
	if srcH <= 0 || dstH <= 0 {
		return 0, false
	}
	radius = (float64(srcH)/float64(dstH) - 1) / 3.5
	if radius < MinBlurRadius {
		return 0, false
	}
	if radius > MaxBlurRadius {
		radius = MaxBlurRadius
	}
	return radius, true
}

func checkSize(r *core.Raster, w, h int) error {
	if r == nil || len(r.Pix) == 0 {
		return apperrors.New(apperrors.CategoryPipeline, "resize", apperrors.ErrEmptyInput)
	}
	if w <= 0 || h <= 0 {
		return apperrors.New(apperrors.CategoryPipeline, "resize",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, w, h))
	}
	return nil
}

// fromNRGBA copies the first channels samples of every pixel of img.
func fromNRGBA(img *image.NRGBA, channels int) *core.Raster {
	b := img.Bounds()
	out := core.NewRaster(b.Dx(), b.Dy(), channels)
	for y := 0; y < out.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+out.Width*4]
		dst := out.Pix[y*out.Width*channels : (y+1)*out.Width*channels]
		for x := 0; x < out.Width; x++ {
			copy(dst[x*channels:(x+1)*channels], row[x*4:x*4+channels])
		}
	}
	return out
}

func grayFromNRGBA(img *image.NRGBA) *image.Gray {
	r := fromNRGBA(img, 1)
	return r.Image().(*image.Gray)
}
