package core

import (
	"context"
)

// Decoder converts encoded bytes into an 8-bit Raster.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Raster, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises a Raster to bytes in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, r *Raster, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality  int  // 1-100; 0 = use encoder default
	Lossless bool // WebP / AVIF lossless mode
}

// Model is a loaded inference handle.  Handles are opaque to the pipeline.
type Model interface {
	Path() string
}

// ModelLoader loads a model file into a handle.
type ModelLoader interface {
	Load(ctx context.Context, path string) (Model, error)
}

// Upscaler runs a model over a normalised buffer and returns the result.
// The returned tensor may have a different size and channel count.
type Upscaler interface {
	Upscale(ctx context.Context, m Model, t *Tensor, tile TileSize, dev DeviceOptions) (*Tensor, error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// ProgressReporter receives line-oriented progress tokens such as
// TOTALZIP=12 or PROGRESS=postprocess_worker_folder.
type ProgressReporter interface {
	Report(key, value string)
}
