package decoder

import (
	"context"
	"image/png"

	"github.com/Skryldev/batch-upscale/core"
)

// PNG decodes PNG images using the standard library.  16-bit images are
// reduced to 8 bits.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	return decode(ctx, "png.decode", data, png.Decode)
}
