// Package chain classifies decoded images and selects the chain rule that
// governs how each one is processed.
package chain

import (
	"github.com/Skryldev/batch-upscale/core"
)

// Decision is the outcome of classifying one image.
type Decision struct {
	// Chain is the first matching rule, nil when none matched.
	Chain *core.Chain
	Index int // position of Chain in the rule list, -1 when none matched

	// Grayscale is false whenever no rule matched.
	Grayscale bool

	OriginalWidth  int
	OriginalHeight int

	// Scale is the effective target scale used for matching.
	Scale float64
}

// Matched reports whether a rule was selected.
func (d Decision) Matched() bool { return d.Chain != nil }

// Select classifies r and returns the first rule in chains that applies to it.
// It has no side effects; callers apply the rule's resize, levels and model.
func Select(r *core.Raster, g core.Geometry, chains []core.Chain, threshold int) Decision {
	d := Decision{
		Index:          -1,
		OriginalWidth:  r.Width,
		OriginalHeight: r.Height,
		Scale:          g.EffectiveScale(r.Width, r.Height),
	}

	gray := IsGrayscale(r, threshold)
	for i := range chains {
		if Matches(&chains[i], r.Width, r.Height, gray, d.Scale) {
			d.Chain = &chains[i]
			d.Index = i
			d.Grayscale = gray
			return d
		}
	}
	return d
}

// Matches reports whether rule c applies to a w×h image with the given
// classification and effective scale.  Zero bounds are unbounded.
func Matches(c *core.Chain, w, h int, gray bool, scale float64) bool {
	if c.MinWidth != 0 && c.MinWidth > w {
		return false
	}
	if c.MinHeight != 0 && c.MinHeight > h {
		return false
	}
	if c.MaxWidth != 0 && c.MaxWidth < w {
		return false
	}
	if c.MaxHeight != 0 && c.MaxHeight < h {
		return false
	}

	if gray && !c.Grayscale {
		return false
	}
	if !gray && !c.Color {
		return false
	}

	if c.MaxScale != 0 && scale > c.MaxScale {
		return false
	}
	if c.MinScale != 0 && scale < c.MinScale {
		return false
	}
	return true
}
