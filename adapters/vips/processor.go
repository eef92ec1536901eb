// Package vips is a libvips codec backend.  Decoded images are transformed to
// sRGB through their embedded ICC profile before they reach the pipeline, and
// it adds AVIF encoding, which the standard library backend lacks.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a libvips-powered Decoder.  Encoders for each output format are
// obtained with Encoder.  Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF, core.FormatUnknown:
		return true
	}
	return false
}

// Decode loads data, converts it to 8-bit sRGB (or 8-bit gray for
// single-band images) and returns the pixels.
func (b *Backend) Decode(ctx context.Context, data []byte) (*core.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	ref, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	if err := normalize(ref); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.colour", err)
	}

	// Pixels leave libvips as an uncompressed PNG.
	ep := govips.NewPngExportParams()
	ep.Compression = 0
	ep.StripMetadata = true
	buf, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.export", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.export", err)
	}
	return core.RasterFromImage(img), nil
}

// normalize applies the embedded profile and brings ref to 8-bit sRGB or
// 8-bit gray.
func normalize(ref *govips.ImageRef) error {
	switch ref.Interpretation() {
	case govips.InterpretationBW, govips.InterpretationGrey16:
		if err := ref.ToColorSpace(govips.InterpretationBW); err != nil {
			return err
		}
	default:
		if ref.HasICCProfile() {
			if err := ref.TransformICCProfile(govips.SRGBIEC6196621ICCProfilePath); err != nil {
				return err
			}
		}
		if err := ref.ToColorSpace(govips.InterpretationSRGB); err != nil {
			return err
		}
	}
	if ref.BandFormat() != govips.BandFormatUchar {
		return ref.Cast(govips.BandFormatUchar)
	}
	return nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

// Encoder returns the encoder for format f, or false when libvips is not used
// for it.
func (b *Backend) Encoder(f core.Format) (core.Encoder, bool) {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF:
		return &formatEncoder{b: b, format: f}, true
	}
	return nil, false
}

type formatEncoder struct {
	b      *Backend
	format core.Format
}

func (e *formatEncoder) CanEncode(f core.Format) bool { return f == e.format }

func (e *formatEncoder) Encode(ctx context.Context, r *core.Raster, opts core.EncodeOptions) ([]byte, error) {
	op := "vips.encode." + string(e.format)
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if r == nil || len(r.Pix) == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}

	// Pixels enter libvips as an uncompressed PNG.
	var in bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&in, r.Image()); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	ref, err := govips.NewImageFromBuffer(in.Bytes())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	defer ref.Close()

	quality := opts.Quality
	if quality <= 0 {
		quality = e.b.cfg.DefaultQuality
	}

	var buf []byte
	switch e.format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err = ref.ExportJpeg(ep)
	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = true
		buf, _, err = ref.ExportPng(ep)
	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = true
		buf, _, err = ref.ExportWebp(ep)
	case core.FormatAVIF:
		ep := govips.NewAvifExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = true
		buf, _, err = ref.ExportAvif(ep)
	default:
		err = fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, e.format)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return buf, nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend makes libvips the codec for every format it handles,
// including the fallback decoder for undetected input.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF, core.FormatUnknown} {
		reg.RegisterDecoder(f, b)
	}
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF} {
		enc, _ := b.Encoder(f)
		reg.RegisterEncoder(f, enc)
	}
}

// compile-time interface checks
var (
	_ core.Decoder = (*Backend)(nil)
	_ core.Encoder = (*formatEncoder)(nil)
)
