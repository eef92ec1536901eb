package core

import (
	"errors"
)

// Geometry is the target output size of a batch: a uniform scale, a fixed
// width, a fixed height, or a width+height box the image is fitted into.
type Geometry struct {
	Scale  float64
	Width  int
	Height int
}

// Validate rejects geometries that leave no way to compute a target size.
func (g Geometry) Validate() error {
	if g.Width < 0 || g.Height < 0 || g.Scale < 0 {
		return errors.New("geometry: negative target")
	}
	if g.Width == 0 && g.Height == 0 && g.Scale == 0 {
		return errors.New("geometry: one of scale, width or height must be set")
	}
	return nil
}

// EffectiveScale returns the scale implied by the geometry for an image of
// the given original size.
func (g Geometry) EffectiveScale(origW, origH int) float64 {
	switch {
	case g.Width != 0 && g.Height != 0:
		sh := float64(g.Height) / float64(origH)
		sw := float64(g.Width) / float64(origW)
		if sw < sh {
			return sw
		}
		return sh
	case g.Height != 0:
		return float64(g.Height) / float64(origH)
	case g.Width != 0:
		return float64(g.Width) / float64(origW)
	}
	return g.Scale
}

// FinalSize returns the size the upscaled image (curW×curH) is resized to for
// an input originally origW×origH, and false when no resize is needed.
// A box geometry binds on the dimension giving the smaller scale.
func (g Geometry) FinalSize(curW, curH, origW, origH int) (int, int, bool) {
	tw, th := g.Width, g.Height
	if tw != 0 && th != 0 {
		if float64(th)/float64(origH) < float64(tw)/float64(origW) {
			tw = 0
		} else {
			th = 0
		}
	}

	switch {
	case th != 0:
		if curH == th {
			return curW, curH, false
		}
		return RoundHalfEven(float64(curW) * float64(th) / float64(curH)), th, true
	case tw != 0:
		if curW == tw {
			return curW, curH, false
		}
		return tw, RoundHalfEven(float64(curH) * float64(tw) / float64(curW)), true
	}

	nh := RoundHalfEven(float64(origH) * g.Scale)
	if curH == nh {
		return curW, curH, false
	}
	return RoundHalfEven(float64(curW) * float64(nh) / float64(curH)), nh, true
}
