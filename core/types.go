package core

import (
	"context"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatBMP     Format = "bmp"
	FormatUnknown Format = "unknown"
)

// Extension returns the file extension written for f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// OutputFormats lists the formats a batch may be configured to write.
var OutputFormats = []Format{FormatPNG, FormatJPEG, FormatWebP, FormatAVIF}

// ParseFormat maps a user supplied name to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "avif":
		return FormatAVIF
	case "bmp":
		return FormatBMP
	}
	return FormatUnknown
}

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceGray ColorSpace = "gray"
)

// ColorSpaceFor returns the colour space implied by a channel count.
func ColorSpaceFor(channels int) ColorSpace {
	switch channels {
	case 1:
		return ColorSpaceGray
	case 4:
		return ColorSpaceRGBA
	}
	return ColorSpaceRGB
}

// Metadata describes the current state of an item's pixels.
type Metadata struct {
	Width      int
	Height     int
	Channels   int
	ColorSpace ColorSpace

	// Dimensions as decoded, before any pre-upscale resize.
	OriginalWidth  int
	OriginalHeight int

	// Grayscale is set by classification when a chain matched a grayscale image.
	Grayscale bool

	SizeBytes int64
}

// ImageData is the per-item state passed through pipeline steps.  Exactly
// one stage owns an ImageData at a time.
type ImageData struct {
	// Name is the source identity: relative path, archive entry name or file name.
	Name string

	// Encoded bytes: the raw input until decode, the output after encode.
	Data   []byte
	Format Format

	// Raster is the 8-bit buffer; Tensor the normalised buffer used around
	// inference.  At most one of them is live at a time.
	Raster *Raster
	Tensor *Tensor

	Meta Metadata

	// Decision made by classification; Chain is nil when no rule matched.
	Chain *Chain
	Model Model
	Tile  TileSize
}

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// DeviceOptions are passed through to the inference backend untouched.
type DeviceOptions struct {
	UseCPU      bool
	UseFP16     bool
	DeviceIndex int
}
