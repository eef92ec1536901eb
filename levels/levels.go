// Package levels implements the histogram based auto-levels stretch applied
// to grayscale images before inference.
package levels

import (
	"github.com/Skryldev/batch-upscale/core"
)

// Histogram counts the samples of a single channel raster.  Multi-channel
// rasters are collapsed to luma first.
func Histogram(r *core.Raster) [256]int {
	var h [256]int
	for _, v := range r.ToGray().Pix {
		h[v]++
	}
	return h
}

// Levels finds the black and white points of hist.
//
// The black point is the highest bin in [0,30]; the search then continues
// upward from 31, moving the black point to every strictly higher bin and
// stopping after two consecutive lower bins.  The white point mirrors this
// from 255 down over [255,225] and then from 223.  Ties keep the first bin
// seen.
func Levels(hist [256]int) (black, white int) {
	peak := hist[0]
	for i := 1; i <= 30; i++ {
		if hist[i] > peak {
			peak = hist[i]
			black = i
		}
	}
	drops := 0
	for i := 31; i < 256; i++ {
		if hist[i] > peak {
			drops = 0
			peak = hist[i]
			black = i
		} else if hist[i] < peak {
			drops++
			if drops > 1 {
				break
			}
		}
	}

	white = 255
	peak = hist[255]
	for i := 254; i >= 225; i-- {
		if hist[i] > peak {
			peak = hist[i]
			white = i
		}
	}
	drops = 0
	for i := 223; i >= 0; i-- {
		if hist[i] > peak {
			drops = 0
			peak = hist[i]
			white = i
		} else if hist[i] < peak {
			drops++
			if drops > 1 {
				break
			}
		}
	}
	return black, white
}

// Stretch maps every sample v of r to clip((v-black)/(white-black), 0, 1).
// When white is not above black the samples are only normalised.
func Stretch(r *core.Raster, black, white int) *core.Tensor {
	if white <= black {
		return r.Normalize()
	}
	t := core.NewTensor(r.Width, r.Height, r.Channels)
	span := float32(white - black)
	for i, v := range r.Pix {
		s := (float32(v) - float32(black)) / span
		switch {
		case s < 0:
			s = 0
		case s > 1:
			s = 1
		}
		t.Data[i] = s
	}
	return t
}

// Apply collapses r to gray, computes its levels and stretches it.
func Apply(r *core.Raster) (t *core.Tensor, black, white int) {
	g := r.ToGray()
	black, white = Levels(Histogram(g))
	return Stretch(g, black, white), black, white
}
