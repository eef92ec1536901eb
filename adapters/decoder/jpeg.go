package decoder

import (
	"context"
	"image/jpeg"

	"github.com/Skryldev/batch-upscale/core"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	return decode(ctx, "jpeg.decode", data, jpeg.Decode)
}
