package decoder

import (
	"context"

	"golang.org/x/image/bmp"

	"github.com/Skryldev/batch-upscale/core"
)

// BMP decodes uncompressed BMP images using golang.org/x/image/bmp.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) CanDecode(format core.Format) bool {
	return format == core.FormatBMP
}

func (b *BMP) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	return decode(ctx, "bmp.decode", data, bmp.Decode)
}
