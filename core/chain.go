package core

import "strconv"

// NoModel is the model reference meaning "do not run inference".
const NoModel = "No Model"

// Chain is one parsed chain rule.  Zero bounds are unbounded; list order of
// chains is significant.  A Chain is immutable once loaded.
type Chain struct {
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int

	Grayscale bool // applies to grayscale images
	Color     bool // applies to colour images

	MinScale, MaxScale float64

	// Pre-upscale resize.  Priority: both > height > width > factor.
	ResizeWidth  int
	ResizeHeight int
	ResizeFactor float64 // percent; 0 and 100 are no-ops

	AutoLevels bool

	// ModelPath is relative to the models root; "" means no model.
	ModelPath string
	TileToken string
}

// HasModel reports whether the rule references a model file.
func (c *Chain) HasModel() bool {
	return c.ModelPath != "" && c.ModelPath != NoModel
}

// PreResizeSize returns the size the rule resizes a w×h image to before
// inference, and false when the rule requests no pre-resize.
func (c *Chain) PreResizeSize(w, h int) (int, int, bool) {
	switch {
	case c.ResizeWidth != 0 && c.ResizeHeight != 0:
		return c.ResizeWidth, c.ResizeHeight, true
	case c.ResizeHeight != 0:
		return RoundHalfEven(float64(w) * float64(c.ResizeHeight) / float64(h)), c.ResizeHeight, true
	case c.ResizeWidth != 0:
		return c.ResizeWidth, RoundHalfEven(float64(h) * float64(c.ResizeWidth) / float64(w)), true
	case c.ResizeFactor != 0 && c.ResizeFactor != 100:
		return RoundHalfEven(float64(w) * c.ResizeFactor / 100),
			RoundHalfEven(float64(h) * c.ResizeFactor / 100), true
	}
	return w, h, false
}

// TileSize is a resolved tiling directive handed to the inference backend.
// Positive values are explicit tile sizes in pixels.
type TileSize int

const (
	TileEstimate TileSize = 0
	TileNone     TileSize = -1
	TileMax      TileSize = -2
)

func (t TileSize) String() string {
	switch t {
	case TileEstimate:
		return "auto"
	case TileNone:
		return "none"
	case TileMax:
		return "max"
	}
	return strconv.Itoa(int(t))
}
