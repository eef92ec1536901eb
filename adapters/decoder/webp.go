package decoder

import (
	"context"

	"golang.org/x/image/webp"

	"github.com/Skryldev/batch-upscale/core"
)

// WebP decodes still WebP images (lossy and lossless) using
// golang.org/x/image/webp.  Animated files are rejected by the decoder.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	return decode(ctx, "webp.decode", data, webp.Decode)
}
